package stores

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/a2anet/a2anet-go/pkg/a2a"
	"github.com/a2anet/a2anet-go/pkg/errors"
)

/*
InMemoryTaskStore keeps tasks in a map guarded by a registry lock, with a
per-entry mutex so transitions for one task serialize without blocking
unrelated tasks.
*/
type InMemoryTaskStore struct {
	mu        sync.RWMutex
	entries   map[string]*taskEntry
	byContext map[string][]string
}

type taskEntry struct {
	mu   sync.Mutex
	task *a2a.Task
}

func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		entries:   make(map[string]*taskEntry),
		byContext: make(map[string][]string),
	}
}

func (store *InMemoryTaskStore) Create(
	ctx context.Context, task *a2a.Task,
) *errors.RpcError {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.entries[task.ID]; ok {
		return errors.ErrTaskAlreadyExists.WithMessagef(
			"task %s already exists", task.ID,
		)
	}

	store.entries[task.ID] = &taskEntry{task: task.Clone()}

	if task.ContextID != "" {
		store.byContext[task.ContextID] = append(
			store.byContext[task.ContextID], task.ID,
		)
	}

	return nil
}

func (store *InMemoryTaskStore) Get(
	ctx context.Context, id string, historyLength int,
) (*a2a.Task, *errors.RpcError) {
	entry, rpcErr := store.entry(id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	entry.mu.Lock()
	task := entry.task.Clone()
	entry.mu.Unlock()

	if historyLength > 0 && len(task.History) > historyLength {
		task.History = task.History[len(task.History)-historyLength:]
	}

	return task, nil
}

/*
Update applies a mutation atomically.  The mutator works on a copy; the
copy only replaces the stored task if the mutator succeeds and any
transition it minted is a legal lifecycle move.
*/
func (store *InMemoryTaskStore) Update(
	ctx context.Context, id string, mutate Mutator,
) (*a2a.Task, *errors.RpcError) {
	entry, rpcErr := store.entry(id)
	if rpcErr != nil {
		return nil, rpcErr
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	before := entry.task.Status.State
	transitionsBefore := len(entry.task.Transitions)
	draft := entry.task.Clone()

	if rpcErr := mutate(draft); rpcErr != nil {
		return nil, rpcErr
	}

	// A minted transition must be legal even when it lands on the same
	// state, so a stale writer cannot pad the audit trail.
	transitioned := draft.Status.State != before ||
		len(draft.Transitions) != transitionsBefore

	if transitioned && !a2a.ValidTransition(before, draft.Status.State) {
		log.Error("illegal task state transition rejected",
			"task", id, "from", before, "to", draft.Status.State,
		)
		return nil, errors.ErrInvalidTaskState.WithMessagef(
			"invalid state transition from %s to %s", before, draft.Status.State,
		)
	}

	entry.task = draft
	return draft.Clone(), nil
}

func (store *InMemoryTaskStore) ListByContext(
	ctx context.Context, contextID string,
) ([]a2a.Task, *errors.RpcError) {
	store.mu.RLock()
	ids := append([]string(nil), store.byContext[contextID]...)
	store.mu.RUnlock()

	tasks := make([]a2a.Task, 0, len(ids))

	for _, id := range ids {
		task, rpcErr := store.Get(ctx, id, 0)
		if rpcErr != nil {
			continue // deleted between snapshot and read
		}
		tasks = append(tasks, *task)
	}

	return tasks, nil
}

func (store *InMemoryTaskStore) Delete(
	ctx context.Context, id string,
) *errors.RpcError {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, ok := store.entries[id]
	if !ok {
		return errors.ErrTaskNotFound.WithMessagef("task %s not found", id)
	}

	delete(store.entries, id)

	contextID := entry.task.ContextID
	if contextID == "" {
		return nil
	}

	ids := store.byContext[contextID]
	for i, candidate := range ids {
		if candidate == id {
			store.byContext[contextID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	return nil
}

func (store *InMemoryTaskStore) entry(id string) (*taskEntry, *errors.RpcError) {
	store.mu.RLock()
	entry, ok := store.entries[id]
	store.mu.RUnlock()

	if !ok {
		return nil, errors.ErrTaskNotFound.WithMessagef("task %s not found", id)
	}

	return entry, nil
}
