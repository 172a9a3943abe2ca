package stores

import (
	"context"

	"github.com/a2anet/a2anet-go/pkg/a2a"
	"github.com/a2anet/a2anet-go/pkg/errors"
)

/*
Mutator edits a task in place under the store's per-task exclusivity
guarantee.  Returning an error aborts the update and leaves the stored
task untouched.
*/
type Mutator func(task *a2a.Task) *errors.RpcError

/*
TaskStore is the durable-in-process registry of task identity, state and
history.  Updates to the same task serialize; updates to different tasks
proceed independently.
*/
type TaskStore interface {
	Create(ctx context.Context, task *a2a.Task) *errors.RpcError
	Get(ctx context.Context, id string, historyLength int) (*a2a.Task, *errors.RpcError)
	Update(ctx context.Context, id string, mutate Mutator) (*a2a.Task, *errors.RpcError)
	ListByContext(ctx context.Context, contextID string) ([]a2a.Task, *errors.RpcError)
	Delete(ctx context.Context, id string) *errors.RpcError
}
