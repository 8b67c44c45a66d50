package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/ir"
)

// PushUpdate is one line of a push stream:
//
//	{"key": 101, "value": {"kind": "text", "value": "IBM 142.1"}}
type PushUpdate struct {
	Key   int32           `json:"key"`
	Value json.RawMessage `json:"value"`
}

// openPushSource opens path for reading; "-" is the command's stdin.
func openPushSource(path string, cmd *cobra.Command) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// pushUpdates queues every update read from r on p until r ends, ctx is
// done or p stops accepting. Malformed lines are logged and skipped.
// Returns the number of updates queued.
func pushUpdates(ctx context.Context, r io.Reader, p *engine.FeedProducer, logger *slog.Logger) (int, error) {
	scanner := bufio.NewScanner(r)
	pushed, line := 0, 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			return pushed, nil
		}
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		u, err := decodePushUpdate(data)
		if err != nil {
			logger.Warn("skipping pushed update", "line", line, "error", err)
			continue
		}
		if !p.Push(u) {
			return pushed, nil
		}
		pushed++
	}
	return pushed, scanner.Err()
}

func decodePushUpdate(data []byte) (engine.Update, error) {
	var pu PushUpdate
	if err := json.Unmarshal(data, &pu); err != nil {
		return engine.Update{}, fmt.Errorf("decode update: %w", err)
	}
	if len(pu.Value) == 0 {
		return engine.Update{}, errors.New("update value is required")
	}
	v, err := ir.UnmarshalValue(pu.Value)
	if err != nil {
		return engine.Update{}, fmt.Errorf("topic %d: %w", pu.Key, err)
	}
	return engine.Update{Key: pu.Key, Value: v}, nil
}
