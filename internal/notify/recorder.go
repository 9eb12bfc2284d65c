package notify

import (
	"context"
	"sync"
)

// Recorder keeps delivered messages in memory. Useful in tests and dry runs.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

// FailWith makes subsequent Notify calls return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// ByKind returns the recorded messages of one kind.
func (r *Recorder) ByKind(kind Kind) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, msg := range r.msgs {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}

// Reset clears the recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}
