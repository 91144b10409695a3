package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/eca/internal/ir"
)

// ErrNotFound is returned when a model id is not stored.
var ErrNotFound = errors.New("model not found")

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ChangeKind says what happened to a model.
type ChangeKind string

const (
	ChangePut    ChangeKind = "put"
	ChangeStatus ChangeKind = "status"
	ChangeDelete ChangeKind = "delete"
)

// Change is delivered to OnChange listeners after a committed write.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	ModelID string     `json:"model_id"`
}

// ModelRecord is the stored metadata of one model.
type ModelRecord struct {
	ID       string    `json:"id"`
	Label    string    `json:"label,omitempty"`
	Status   ir.Status `json:"status"`
	Hash     string    `json:"hash"`
	Revision int64     `json:"revision"`
}

// Notifier fans committed changes out to listeners. Stores embed it.
type Notifier struct {
	mu        sync.RWMutex
	listeners []func(Change)
}

// OnChange registers fn. Listeners run synchronously on the writer's
// goroutine, after the write has committed.
func (n *Notifier) OnChange(fn func(Change)) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, fn)
}

// Notify delivers c to every listener.
func (n *Notifier) Notify(c Change) {
	n.mu.RLock()
	listeners := append([]func(Change){}, n.listeners...)
	n.mu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}
