// The urlcache package empties a URL cache store: first every cache group is deleted (together with the URLs that
// belong only to that group), then every remaining ungrouped entry. The store itself is an injected capability so
// the clearer can run against an in-memory store in tests or a shared Redis-backed store in deployments.

package urlcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMoreItems signals the normal end of an enumeration. It is loop control, not a failure.
	ErrNoMoreItems = errors.New("urlcache: no more items")
	// ErrNotFound signals that the addressed group or entry is already gone. Callers advance instead of aborting.
	ErrNotFound = errors.New("urlcache: not found")
	// ErrBufferTooSmall signals that the caller-provided buffer cannot hold the next record.
	// It is always wrapped in a SizeError carrying the required capacity.
	ErrBufferTooSmall = errors.New("urlcache: buffer too small")
)

// SizeError reports the buffer capacity a store needs to describe the next entry record.
// The caller is expected to grow its buffer to Required bytes and retry the same query.
type SizeError struct {
	Required int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("urlcache: buffer too small, %d bytes required", e.Required)
}

func (e *SizeError) Unwrap() error { return ErrBufferTooSmall }

// GroupID is an opaque identifier for a cache group. IDs are only meaningful for the duration of a single
// enumeration pass against the store that produced them.
type GroupID uint64

// DeleteFlag modifies how a group deletion behaves.
type DeleteFlag uint32

const (
	// FlushGroupURLs instructs the store to also delete URLs that belong only to the deleted group.
	FlushGroupURLs DeleteFlag = 1 << iota
)

// GroupCursor steps through cache groups one at a time. A cursor is bound to a single enumeration pass and must not
// be reused after Next returns ErrNoMoreItems or after Close.
type GroupCursor interface {
	// Next returns the next group identifier, or ErrNoMoreItems when the pass is exhausted.
	Next() (GroupID, error)
	Close() error
}

// EntryCursor steps through cache entry records one at a time. Next encodes the current record into buf and returns
// the number of bytes written. When buf cannot hold the record, Next returns a *SizeError and keeps the cursor
// positioned on the same record so the caller can grow the buffer and retry. A nil buf is a pure size probe.
type EntryCursor interface {
	Next(buf []byte) (int, error)
	Close() error
}

// Store is the capability the clearer operates on. Implementations are not required to be safe for concurrent use;
// the clearer assumes exclusive, uncontended access for the duration of a ClearCache call.
type Store interface {
	// EnumGroups opens a group enumeration pass. It returns ErrNoMoreItems when no groups exist at all.
	EnumGroups() (GroupCursor, error)
	// DeleteGroup removes the addressed group. ErrNotFound means the group is already gone.
	DeleteGroup(id GroupID, flags DeleteFlag) error
	// EnumEntries opens an entry enumeration pass over the remaining entries.
	EnumEntries() (EntryCursor, error)
	// DeleteEntry removes the entry addressed by its source URL. ErrNotFound means it is already gone.
	DeleteEntry(sourceURL string) error
}
