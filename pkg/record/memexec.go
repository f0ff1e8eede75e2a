package record

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"
)

// MemExecutor implements Executor on nested maps. It is used by tests and by callers that have not wired a real
// database yet. Field maps are copied on the way in and out so callers cannot alias stored state.
type MemExecutor struct {
	mux    sync.RWMutex
	tables map[string]map[uuid.UUID]map[string]any
}

// NewMemExecutor is the constructor for MemExecutor.
func NewMemExecutor() *MemExecutor {
	return &MemExecutor{tables: make(map[string]map[uuid.UUID]map[string]any)}
}

func (e *MemExecutor) Load(_ context.Context, table string, id uuid.UUID) (map[string]any, error) {
	e.mux.RLock()
	defer e.mux.RUnlock()

	rows, exists := e.tables[table]
	if !exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, table, id)
	}
	fields, exists := rows[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, table, id)
	}
	return maps.Clone(fields), nil
}

func (e *MemExecutor) Save(_ context.Context, table string, id uuid.UUID, fields map[string]any) error {
	e.mux.Lock()
	defer e.mux.Unlock()

	rows, exists := e.tables[table]
	if !exists {
		rows = make(map[uuid.UUID]map[string]any)
		e.tables[table] = rows
	}
	rows[id] = maps.Clone(fields)
	return nil
}

func (e *MemExecutor) Delete(_ context.Context, table string, id uuid.UUID) error {
	e.mux.Lock()
	defer e.mux.Unlock()

	rows, exists := e.tables[table]
	if !exists {
		return fmt.Errorf("%w: %s/%s", ErrRecordNotFound, table, id)
	}
	if _, exists := rows[id]; !exists {
		return fmt.Errorf("%w: %s/%s", ErrRecordNotFound, table, id)
	}
	delete(rows, id)
	return nil
}
