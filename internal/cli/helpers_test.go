package cli

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/ir"
	"github.com/xll-gen/rtd/internal/store"
)

const quotesFeed = `feed: {
	name:  "quotes"
	delay: "20ms"
	topics: [
		{key: 101, value: "Value1"},
		{key: 102, value: 123.45},
		{key: 103, generator: "echo", args: ["IBM"]},
	]
}
`

const brokenFeed = `feed: {
	name:  "broken"
	delay: "-1s"
	topics: [
		{key: 1, generator: "constant"},
		{key: 1, value: 2},
	]
}
`

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs cmd with args and returns what it wrote to stdout.
// Diagnostics written to stderr are discarded.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// journalSession records a short session in a new database at dbPath:
// topics 101, 102 and 103 are subscribed, 103 is dropped again, and two
// batches are drained.
func journalSession(t *testing.T, dbPath, id string) {
	t.Helper()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	e := engine.New(
		engine.WithLifecycle(engine.NewLifecycleCounter()),
		engine.WithIDGenerator(engine.NewFixedGenerator(id)),
		engine.WithObserver(store.NewJournal(st, discardLogger())),
		engine.WithLogger(discardLogger()),
	)
	e.Subscribe(101, "IBM")
	e.Subscribe(102)
	e.Subscribe(103)
	e.Unsubscribe(103)
	e.UpdateTopic(101, ir.Text("Value1"))
	e.UpdateTopic(102, ir.Real(123.45))
	require.NotNil(t, e.Drain())
	e.UpdateTopic(101, ir.Text("Value2"))
	require.NotNil(t, e.Drain())
	e.Release()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
