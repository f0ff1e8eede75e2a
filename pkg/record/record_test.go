package record

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// account is a minimal model exercising every lifecycle hook. Each hook appends its name to hookTrail so tests can
// assert ordering, and returns the error configured in hookErrs for its name.
type account struct {
	Base
	Owner   string
	Balance int

	hookTrail []string
	hookErrs  map[string]error
}

func (a *account) Table() string { return "accounts" }

func (a *account) Fields() map[string]any {
	return map[string]any{"owner": a.Owner, "balance": a.Balance}
}

func (a *account) SetFields(fields map[string]any) error {
	owner, ok := fields["owner"].(string)
	if !ok {
		return errors.New("owner field missing or mistyped")
	}
	balance, ok := fields["balance"].(int)
	if !ok {
		return errors.New("balance field missing or mistyped")
	}
	a.Owner, a.Balance = owner, balance
	return nil
}

func (a *account) hook(name string) error {
	a.hookTrail = append(a.hookTrail, name)
	return a.hookErrs[name]
}

func (a *account) BeforeLoad(context.Context) error   { return a.hook("beforeLoad") }
func (a *account) AfterLoad(context.Context) error    { return a.hook("afterLoad") }
func (a *account) BeforeSave(context.Context) error   { return a.hook("beforeSave") }
func (a *account) AfterSave(context.Context) error    { return a.hook("afterSave") }
func (a *account) BeforeDelete(context.Context) error { return a.hook("beforeDelete") }
func (a *account) AfterDelete(context.Context) error  { return a.hook("afterDelete") }

func newAccount(owner string, balance int) *account {
	return &account{Base: NewBase(), Owner: owner, Balance: balance}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	exec := NewMemExecutor()
	saved := newAccount("alice", 100)
	require.NoError(t, Save(context.Background(), exec, saved))

	loaded := &account{Base: Base{ID: saved.ID}}
	require.NoError(t, Load(context.Background(), exec, loaded))
	assert.Equal(t, "alice", loaded.Owner)
	assert.Equal(t, 100, loaded.Balance)
}

func TestHookOrdering(t *testing.T) {
	exec := NewMemExecutor()
	acc := newAccount("bob", 5)
	require.NoError(t, Save(context.Background(), exec, acc))
	require.NoError(t, Load(context.Background(), exec, acc))
	require.NoError(t, Delete(context.Background(), exec, acc))

	assert.Equal(t, []string{
		"beforeSave", "afterSave",
		"beforeLoad", "afterLoad",
		"beforeDelete", "afterDelete",
	}, acc.hookTrail)
}

func TestBeforeHookErrorAbortsOperation(t *testing.T) {
	exec := NewMemExecutor()
	hookErr := errors.New("not ready")
	acc := newAccount("carol", 1)
	acc.hookErrs = map[string]error{"beforeSave": hookErr}

	err := Save(context.Background(), exec, acc)
	require.ErrorIs(t, err, hookErr)

	// The executor must not have been reached: the row does not exist.
	probe := &account{Base: Base{ID: acc.ID}}
	assert.ErrorIs(t, Load(context.Background(), exec, probe), ErrRecordNotFound)
}

func TestAfterHookErrorPropagatesAfterWrite(t *testing.T) {
	exec := NewMemExecutor()
	hookErr := errors.New("notify failed")
	acc := newAccount("dave", 7)
	acc.hookErrs = map[string]error{"afterSave": hookErr}

	err := Save(context.Background(), exec, acc)
	require.ErrorIs(t, err, hookErr)

	// The write itself already happened; the row is present despite the hook error.
	probe := &account{Base: Base{ID: acc.ID}}
	assert.NoError(t, Load(context.Background(), exec, probe))
	assert.Equal(t, "dave", probe.Owner)
}

func TestLoadMissingRecord(t *testing.T) {
	exec := NewMemExecutor()
	acc := newAccount("erin", 0)
	assert.ErrorIs(t, Load(context.Background(), exec, acc), ErrRecordNotFound)
}

func TestDeleteRemovesRecord(t *testing.T) {
	exec := NewMemExecutor()
	acc := newAccount("frank", 3)
	require.NoError(t, Save(context.Background(), exec, acc))
	require.NoError(t, Delete(context.Background(), exec, acc))
	assert.ErrorIs(t, Load(context.Background(), exec, acc), ErrRecordNotFound)
	// Deleting again reports not found; the record layer propagates, it does not mask.
	assert.ErrorIs(t, Delete(context.Background(), exec, acc), ErrRecordNotFound)
}
