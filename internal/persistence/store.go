package persistence

import (
	"context"
	"errors"

	"github.com/petrijr/flowstate/pkg/api"
)

var (
	// ErrInstanceNotFound is returned when a workflow instance is not found.
	ErrInstanceNotFound = api.ErrInstanceNotFound

	// ErrInstanceExists is returned by SaveInstance when the ID is taken.
	ErrInstanceExists = api.ErrInstanceExists

	// ErrStateConflict is returned by AppendTransition when the stored
	// instance is no longer in the record's From state.
	ErrStateConflict = errors.New("instance state changed concurrently")
)

// InstanceFilter is used to select instances from the store.
// Empty state / zero limit mean "no filter" for that field.
type InstanceFilter struct {
	State api.State
	Limit int
}

// InstanceStore handles storage of workflow instances and their transition
// history.
type InstanceStore interface {
	// SaveInstance stores a new instance. It returns ErrInstanceExists if an
	// instance with the same ID is already stored.
	SaveInstance(ctx context.Context, snap api.InstanceSnapshot) error

	// GetInstance returns the stored instance with its full history.
	GetInstance(ctx context.Context, id string) (api.InstanceSnapshot, error)

	// ListInstances returns instances ordered by creation time.
	ListInstances(ctx context.Context, filter InstanceFilter) ([]api.InstanceSnapshot, error)

	// AppendTransition moves the instance from rec.From to rec.To and appends
	// rec to its history as one atomic step. If the stored state is not
	// rec.From it changes nothing and returns ErrStateConflict.
	AppendTransition(ctx context.Context, id string, rec api.TransitionRecord) error
}
