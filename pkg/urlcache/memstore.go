// MemStore is the in-process Store used by tests and local tooling. Group identifiers are derived by hashing the
// group name, so the same logical group maps to the same GroupID across enumeration passes. Enumeration order is
// deterministic (sorted) to keep tests stable.

package urlcache

import (
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MemStore implements Store on plain maps. It is not safe for concurrent use, matching the exclusive-access
// assumption the clearer makes about any store handle.
type MemStore struct {
	groups  map[GroupID]*memGroup
	entries map[string]*EntryRecord
}

type memGroup struct {
	name    string
	members map[string]struct{} // Source URLs attached to this group.
}

// NewMemStore is the constructor for MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		groups:  make(map[GroupID]*memGroup),
		entries: make(map[string]*EntryRecord),
	}
}

// GroupIDFor derives the opaque identifier of a group name.
func GroupIDFor(name string) GroupID {
	return GroupID(xxhash.Sum64String(name))
}

// AddGroup creates a group holding the given member URLs and returns its identifier. Members do not need a
// standalone entry record; a member with one becomes an owned URL of the group.
func (s *MemStore) AddGroup(name string, memberURLs ...string) GroupID {
	id := GroupIDFor(name)
	group, exists := s.groups[id]
	if !exists {
		group = &memGroup{name: name, members: make(map[string]struct{})}
		s.groups[id] = group
	}
	for _, url := range memberURLs {
		group.members[url] = struct{}{}
	}
	return id
}

// AddEntry registers a standalone entry record keyed by its source URL.
func (s *MemStore) AddEntry(record EntryRecord) {
	stored := record
	s.entries[record.SourceURL] = &stored
}

// GroupCount returns the number of groups currently held.
func (s *MemStore) GroupCount() int { return len(s.groups) }

// EntryCount returns the number of entry records currently held.
func (s *MemStore) EntryCount() int { return len(s.entries) }

func (s *MemStore) EnumGroups() (GroupCursor, error) {
	if len(s.groups) == 0 {
		return nil, ErrNoMoreItems
	}
	ids := make([]GroupID, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return &memGroupCursor{store: s, ids: ids}, nil
}

func (s *MemStore) DeleteGroup(id GroupID, flags DeleteFlag) error {
	group, exists := s.groups[id]
	if !exists {
		return ErrNotFound
	}
	if flags&FlushGroupURLs != 0 {
		for url := range group.members {
			if s.memberOfOtherGroup(url, id) {
				continue // The URL survives; another group still claims it.
			}
			delete(s.entries, url)
		}
	}
	delete(s.groups, id)
	return nil
}

// memberOfOtherGroup reports whether url is claimed by any group other than exclude.
func (s *MemStore) memberOfOtherGroup(url string, exclude GroupID) bool {
	for id, group := range s.groups {
		if id == exclude {
			continue
		}
		if _, member := group.members[url]; member {
			return true
		}
	}
	return false
}

func (s *MemStore) EnumEntries() (EntryCursor, error) {
	urls := make([]string, 0, len(s.entries))
	for url := range s.entries {
		urls = append(urls, url)
	}
	slices.SortFunc(urls, strings.Compare)
	return &memEntryCursor{store: s, urls: urls}, nil
}

func (s *MemStore) DeleteEntry(sourceURL string) error {
	if _, exists := s.entries[sourceURL]; !exists {
		return ErrNotFound
	}
	delete(s.entries, sourceURL)
	return nil
}

// memGroupCursor walks a sorted snapshot of the group IDs taken when the pass was opened.
type memGroupCursor struct {
	store  *MemStore
	ids    []GroupID
	pos    int
	closed bool
}

func (c *memGroupCursor) Next() (GroupID, error) {
	if c.closed {
		return 0, ErrNoMoreItems
	}
	// Skip groups deleted since the snapshot was taken.
	for c.pos < len(c.ids) {
		id := c.ids[c.pos]
		c.pos++
		if _, exists := c.store.groups[id]; exists {
			return id, nil
		}
	}
	return 0, ErrNoMoreItems
}

func (c *memGroupCursor) Close() error {
	c.closed = true
	return nil
}

// memEntryCursor walks a sorted snapshot of the source URLs taken when the pass was opened. The cursor stays
// positioned on a record until it has been successfully encoded into the caller's buffer, which is what makes the
// grow-and-retry negotiation observable.
type memEntryCursor struct {
	store  *MemStore
	urls   []string
	pos    int
	closed bool
}

func (c *memEntryCursor) Next(buf []byte) (int, error) {
	if c.closed {
		return 0, ErrNoMoreItems
	}
	for c.pos < len(c.urls) {
		record, exists := c.store.entries[c.urls[c.pos]]
		if !exists { // Deleted since the snapshot; move on.
			c.pos++
			continue
		}
		n, err := record.Encode(buf)
		if err != nil {
			return 0, err // Stay on this record; a *SizeError tells the caller to grow and retry.
		}
		c.pos++
		return n, nil
	}
	return 0, ErrNoMoreItems
}

func (c *memEntryCursor) Close() error {
	c.closed = true
	return nil
}
