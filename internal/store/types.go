package store

import "github.com/xll-gen/rtd/internal/ir"

// Session is one journalled engine instance.
type Session struct {
	ID            string
	EngineVersion string
	FormatVersion string
	Ended         bool
}

// TopicEventKind distinguishes subscribe and unsubscribe events.
type TopicEventKind string

const (
	EventSubscribe   TopicEventKind = "subscribe"
	EventUnsubscribe TopicEventKind = "unsubscribe"
)

// TopicEvent is a subscription change. Seq orders events within a session.
type TopicEvent struct {
	SessionID string
	Seq       int64
	Kind      TopicEventKind
	Key       int32
	Args      []string
}

// BatchRecord is the header of one journalled drain.
type BatchRecord struct {
	SessionID string
	DrainSeq  int64
	Size      int
	Digest    string
}

// Delivery is one entry of a journalled drain.
type Delivery struct {
	SessionID string
	DrainSeq  int64
	Position  int
	Key       int32
	Value     ir.Value
	UpdateSeq int64
}
