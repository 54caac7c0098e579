package events

import "time"

// Kind classifies a poll event for the debug panel.
type Kind string

const (
	KindSnapshot  Kind = "snapshot"
	KindError     Kind = "error"
	KindLifecycle Kind = "lifecycle"
)

// PollEvent is one entry in the debug history: a successful snapshot, a
// fetch error, or a discovery lifecycle transition.
type PollEvent struct {
	Timestamp time.Time
	Kind      Kind
	Detail    string
}
