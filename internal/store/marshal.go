package store

import (
	"encoding/json"
	"fmt"

	"github.com/xll-gen/rtd/internal/engine"
	"github.com/xll-gen/rtd/internal/ir"
)

func marshalValue(v ir.Value) (string, error) {
	if v == nil {
		v = ir.Absent{}
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

func unmarshalValue(data string) (ir.Value, error) {
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

// marshalArgs stores topic args as a canonical JSON array of strings.
func marshalArgs(args []string) (string, error) {
	arr := make([]any, len(args))
	for i, a := range args {
		arr[i] = a
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

func unmarshalArgs(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var args []string
	if err := json.Unmarshal([]byte(data), &args); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	return args, nil
}

// canonicalBatch is the digested form of a batch:
// [{"key":k,"seq":s,"value":v}, ...] in delivery order.
func canonicalBatch(batch engine.Batch) []any {
	out := make([]any, len(batch))
	for i, e := range batch {
		v := e.Value
		if v == nil {
			v = ir.Absent{}
		}
		out[i] = map[string]any{
			"key":   e.Key,
			"seq":   e.Seq,
			"value": v,
		}
	}
	return out
}

// BatchDigest returns the content digest journalled for batch.
func BatchDigest(batch engine.Batch) (string, error) {
	return ir.Digest(ir.DomainBatch, canonicalBatch(batch))
}
