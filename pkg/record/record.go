// The record package is an "active record" shim: models embed Base, describe their table and fields, and get
// Load / Save / Delete that delegate all real query work to an injected Executor. Lifecycle hooks fire
// synchronously around the delegated call; a Before hook error aborts the operation before the executor is
// touched, an After hook error is propagated to the caller after the executor has already run.

package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrRecordNotFound is returned when the executor cannot find the addressed row.
var ErrRecordNotFound = errors.New("record: not found")

// Executor runs the actual queries on behalf of the record layer. Implementations decide how fields are persisted;
// the record layer only moves field maps in and out.
type Executor interface {
	Load(ctx context.Context, table string, id uuid.UUID) (map[string]any, error)
	Save(ctx context.Context, table string, id uuid.UUID, fields map[string]any) error
	Delete(ctx context.Context, table string, id uuid.UUID) error
}

// Model is implemented by types that embed Base and describe their own persistence shape.
type Model interface {
	Table() string
	Key() uuid.UUID
	// Fields returns the model's persistable state as a column-to-value map.
	Fields() map[string]any
	// SetFields restores the model's state from a column-to-value map.
	SetFields(fields map[string]any) error
}

// Lifecycle hooks are optional; the record layer discovers them with type assertions on the model.
type (
	BeforeLoader  interface{ BeforeLoad(ctx context.Context) error }
	AfterLoader   interface{ AfterLoad(ctx context.Context) error }
	BeforeSaver   interface{ BeforeSave(ctx context.Context) error }
	AfterSaver    interface{ AfterSave(ctx context.Context) error }
	BeforeDeleter interface{ BeforeDelete(ctx context.Context) error }
	AfterDeleter  interface{ AfterDelete(ctx context.Context) error }
)

// Base carries the record identity. Embed it in model types and set the ID before loading or after constructing.
type Base struct {
	ID uuid.UUID
}

// Key returns the record identity, satisfying half of the Model interface for embedders.
func (b *Base) Key() uuid.UUID { return b.ID }

// NewBase returns a Base with a freshly generated identity.
func NewBase() Base { return Base{ID: uuid.New()} }

// Load fetches the model's row through the executor and restores the model state from it.
func Load(ctx context.Context, exec Executor, model Model) error {
	if hook, ok := model.(BeforeLoader); ok {
		if err := hook.BeforeLoad(ctx); err != nil {
			return fmt.Errorf("before load hook: %w", err)
		}
	}
	fields, err := exec.Load(ctx, model.Table(), model.Key())
	if err != nil {
		return fmt.Errorf("load %s/%s: %w", model.Table(), model.Key(), err)
	}
	if err := model.SetFields(fields); err != nil {
		return fmt.Errorf("restore %s/%s: %w", model.Table(), model.Key(), err)
	}
	if hook, ok := model.(AfterLoader); ok {
		if err := hook.AfterLoad(ctx); err != nil {
			return fmt.Errorf("after load hook: %w", err)
		}
	}
	return nil
}

// Save writes the model's current fields through the executor, inserting or updating as the executor sees fit.
func Save(ctx context.Context, exec Executor, model Model) error {
	if hook, ok := model.(BeforeSaver); ok {
		if err := hook.BeforeSave(ctx); err != nil {
			return fmt.Errorf("before save hook: %w", err)
		}
	}
	if err := exec.Save(ctx, model.Table(), model.Key(), model.Fields()); err != nil {
		return fmt.Errorf("save %s/%s: %w", model.Table(), model.Key(), err)
	}
	if hook, ok := model.(AfterSaver); ok {
		if err := hook.AfterSave(ctx); err != nil {
			return fmt.Errorf("after save hook: %w", err)
		}
	}
	return nil
}

// Delete removes the model's row through the executor.
func Delete(ctx context.Context, exec Executor, model Model) error {
	if hook, ok := model.(BeforeDeleter); ok {
		if err := hook.BeforeDelete(ctx); err != nil {
			return fmt.Errorf("before delete hook: %w", err)
		}
	}
	if err := exec.Delete(ctx, model.Table(), model.Key()); err != nil {
		return fmt.Errorf("delete %s/%s: %w", model.Table(), model.Key(), err)
	}
	if hook, ok := model.(AfterDeleter); ok {
		if err := hook.AfterDelete(ctx); err != nil {
			return fmt.Errorf("after delete hook: %w", err)
		}
	}
	return nil
}
