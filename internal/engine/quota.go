package engine

import (
	"errors"
	"fmt"
)

// Budget counts node visits for one root invocation and enforces the
// node-visit ceiling.
//
// A root invocation is one index match of a host-triggered dispatch. Every
// re-entrant event it publishes and every sub-model it invokes draws from
// the same Budget, so recursive amplification stays bounded by the ceiling.
//
// Budget is not safe for concurrent use; it lives on one Dispatch call stack.
type Budget struct {
	limit   int
	current int
}

// NewBudget creates a budget allowing limit visits.
func NewBudget(limit int) *Budget {
	return &Budget{limit: limit}
}

// Visit records one node visit. It returns VisitsExceededError, without
// counting the visit, once the ceiling has been reached.
func (b *Budget) Visit(invocationID string) error {
	if b.current >= b.limit {
		return &VisitsExceededError{
			InvocationID: invocationID,
			Visits:       b.current,
			Limit:        b.limit,
		}
	}
	b.current++
	return nil
}

// Used returns the number of visits recorded so far.
func (b *Budget) Used() int {
	return b.current
}

// Limit returns the ceiling.
func (b *Budget) Limit() int {
	return b.limit
}

// Remaining returns how many visits are left.
func (b *Budget) Remaining() int {
	return b.limit - b.current
}

// VisitsExceededError is returned when an invocation tree exhausts its
// budget. It terminates the invocation that hit the ceiling with state
// loop_limit_exceeded.
type VisitsExceededError struct {
	InvocationID string
	Visits       int
	Limit        int
}

// Error implements the error interface.
func (e *VisitsExceededError) Error() string {
	return fmt.Sprintf("invocation %s exceeded node-visit limit: %d visits, limit %d",
		e.InvocationID, e.Visits, e.Limit)
}

// IsVisitsExceededError returns true if the error is a VisitsExceededError.
func IsVisitsExceededError(err error) bool {
	var ve *VisitsExceededError
	return errors.As(err, &ve)
}
