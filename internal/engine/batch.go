package engine

import "github.com/xll-gen/rtd/internal/ir"

// Entry is one drained topic.
type Entry struct {
	Key   int32
	Value ir.Value
	// Seq is the clock value of the update that produced Value.
	Seq int64
}

// Batch is the ordered result of a drain. Entries appear in subscription
// order, oldest subscription first. An empty drain yields a nil Batch.
type Batch []Entry

// Len returns the number of entries.
func (b Batch) Len() int {
	return len(b)
}

// Keys returns the topic keys in batch order.
func (b Batch) Keys() []int32 {
	keys := make([]int32, len(b))
	for i, e := range b {
		keys[i] = e.Key
	}
	return keys
}

// Values returns the topic values in batch order.
func (b Batch) Values() []ir.Value {
	vals := make([]ir.Value, len(b))
	for i, e := range b {
		vals[i] = e.Value
	}
	return vals
}
