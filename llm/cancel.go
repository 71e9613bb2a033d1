package llm

import "sync"

// CancellationToken is a shared flag polled by processors between chunk emissions.
// A nil token never trips.
type CancellationToken struct {
	once sync.Once
	done chan struct{}
}

// NewCancellationToken creates an untripped token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{done: make(chan struct{})}
}

// Cancel trips the token. Calling it more than once is a no-op.
func (t *CancellationToken) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.done) })
}

// Cancelled reports whether the token has tripped.
func (t *CancellationToken) Cancelled() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the token trips. For a nil token it is nil
// and blocks forever in a select.
func (t *CancellationToken) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}
