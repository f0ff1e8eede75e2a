package urlcache

import (
	"fmt"
	"slices"
	"testing"

	promclient "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pomelo-lab/appkit/pkg/utils"
)

// fakeStore is an instrumented, mutable Store. Deletes actually remove items so successive ClearCache calls see
// the state the previous call left behind, and forced per-item errors simulate already-deleted groups and flaky
// deletions. Cursors snapshot the item list when the pass opens, like a real cache enumeration handle.
type fakeStore struct {
	groups  []GroupID
	records []EntryRecord

	groupDeleteErr map[GroupID]error // Forced DeleteGroup responses; the group is kept on error.
	entryDeleteErr map[string]error  // Forced DeleteEntry responses; the entry is kept on error.
	enumGroupsErr  error             // Forced EnumGroups open failure.
	enumEntriesErr error             // Forced EnumEntries open failure.
	groupNextErr   error             // Forced GroupCursor.Next failure...
	groupNextErrAt int               // ...once this many groups have been yielded.
	entryNextErr   error             // Forced EntryCursor.Next failure...
	entryNextErrAt int               // ...once this many records have been yielded.

	groupDeleteCalls []GroupID
	entryDeleteCalls []string
	nilProbes        int   // Next(nil) size probes observed.
	bufferCaps       []int // Capacities of the non-nil buffers handed to Next.
}

func (f *fakeStore) EnumGroups() (GroupCursor, error) {
	if f.enumGroupsErr != nil {
		return nil, f.enumGroupsErr
	}
	if len(f.groups) == 0 {
		return nil, ErrNoMoreItems
	}
	return &fakeGroupCursor{store: f, snapshot: slices.Clone(f.groups)}, nil
}

func (f *fakeStore) DeleteGroup(id GroupID, flags DeleteFlag) error {
	f.groupDeleteCalls = append(f.groupDeleteCalls, id)
	if err, forced := f.groupDeleteErr[id]; forced {
		return err
	}
	f.groups = slices.DeleteFunc(f.groups, func(g GroupID) bool { return g == id })
	return nil
}

func (f *fakeStore) EnumEntries() (EntryCursor, error) {
	if f.enumEntriesErr != nil {
		return nil, f.enumEntriesErr
	}
	urls := make([]string, 0, len(f.records))
	for _, record := range f.records {
		urls = append(urls, record.SourceURL)
	}
	return &fakeEntryCursor{store: f, snapshot: urls}, nil
}

func (f *fakeStore) DeleteEntry(sourceURL string) error {
	f.entryDeleteCalls = append(f.entryDeleteCalls, sourceURL)
	if err, forced := f.entryDeleteErr[sourceURL]; forced {
		return err
	}
	if !slices.ContainsFunc(f.records, func(r EntryRecord) bool { return r.SourceURL == sourceURL }) {
		return ErrNotFound
	}
	f.records = slices.DeleteFunc(f.records, func(r EntryRecord) bool { return r.SourceURL == sourceURL })
	return nil
}

func (f *fakeStore) lookup(sourceURL string) (EntryRecord, bool) {
	for _, record := range f.records {
		if record.SourceURL == sourceURL {
			return record, true
		}
	}
	return EntryRecord{}, false
}

type fakeGroupCursor struct {
	store    *fakeStore
	snapshot []GroupID
	pos      int
}

func (c *fakeGroupCursor) Next() (GroupID, error) {
	if c.store.groupNextErr != nil && c.pos >= c.store.groupNextErrAt {
		return 0, c.store.groupNextErr
	}
	if c.pos >= len(c.snapshot) {
		return 0, ErrNoMoreItems
	}
	id := c.snapshot[c.pos]
	c.pos++
	return id, nil
}

func (c *fakeGroupCursor) Close() error { return nil }

type fakeEntryCursor struct {
	store    *fakeStore
	snapshot []string
	pos      int
	served   int // Records successfully encoded so far.
}

func (c *fakeEntryCursor) Next(buf []byte) (int, error) {
	if buf == nil {
		c.store.nilProbes++
	} else {
		c.store.bufferCaps = append(c.store.bufferCaps, len(buf))
	}
	if c.store.entryNextErr != nil && c.served >= c.store.entryNextErrAt {
		return 0, c.store.entryNextErr
	}
	for c.pos < len(c.snapshot) {
		record, present := c.store.lookup(c.snapshot[c.pos])
		if !present { // Deleted since the snapshot was taken.
			c.pos++
			continue
		}
		n, err := record.Encode(buf)
		if err != nil {
			return 0, err // Keeps the cursor on this record for the grow-and-retry.
		}
		c.pos++
		c.served++
		return n, nil
	}
	return 0, ErrNoMoreItems
}

func (c *fakeEntryCursor) Close() error { return nil }

// clearedCount reads the current value of the cleared-items counter for the given kind label.
func clearedCount(t *testing.T, kind string) int {
	t.Helper()
	var metric promclient.Metric
	require.NoError(t, clearedItemsMetric.WithLabelValues(kind).Write(&metric))
	return int(metric.Counter.GetValue())
}

func entryWithURL(url string) EntryRecord {
	record := EntryRecord{SourceURL: url, LocalPath: "/cache/" + url, EntryType: NormalEntry, UseCount: 1}
	record.SetSize(1024)
	return record
}

func TestClearCacheEmptyStoreIssuesNoDeletes(t *testing.T) {
	store := &fakeStore{}
	NewClearer(store).ClearCache()

	assert.Empty(t, store.groupDeleteCalls)
	assert.Empty(t, store.entryDeleteCalls)
}

func TestClearCacheDeletesEveryGroupExactlyOnce(t *testing.T) {
	store := &fakeStore{
		groups: []GroupID{11, 22, 33, 44},
		// Group 22 reports "not found", simulating a group that vanished before our delete landed.
		groupDeleteErr: map[GroupID]error{22: ErrNotFound},
	}
	NewClearer(store).ClearCache()

	assert.Equal(t, []GroupID{11, 22, 33, 44}, store.groupDeleteCalls,
		"expected exactly one delete attempt per group, in enumeration order")
	assert.Equal(t, []GroupID{22}, store.groups, "groups that reported not found are not retried")
}

func TestClearCacheGrowsBufferMidEnumeration(t *testing.T) {
	small := entryWithURL("a.example/tiny")
	big := entryWithURL("b.example/this-url-is-considerably-longer-than-the-first-one")
	big.HeaderBlob = []byte("Content-Type: text/html\r\nCache-Control: max-age=3600\r\n")
	last := entryWithURL("c.example/mid")
	store := &fakeStore{records: []EntryRecord{small, big, last}}

	NewClearer(store).ClearCache()

	// Every entry deleted exactly once, none lost or duplicated across the resize.
	assert.Equal(t, []string{small.SourceURL, big.SourceURL, last.SourceURL}, store.entryDeleteCalls)
	assert.Empty(t, store.records)

	// The buffer was sized for the first record, then grew once the second would not fit.
	require.NotEmpty(t, store.bufferCaps)
	assert.Equal(t, small.EncodedSize(), store.bufferCaps[0])
	assert.Equal(t, big.EncodedSize(), slices.Max(store.bufferCaps))
	assert.True(t, slices.IsSorted(store.bufferCaps), "the scratch buffer only ever grows: %v", store.bufferCaps)
}

func TestClearCacheEmptyEntryEnumerationAllocatesNothing(t *testing.T) {
	store := &fakeStore{groups: []GroupID{7}}
	NewClearer(store).ClearCache()

	assert.Equal(t, 1, store.nilProbes, "the first entry query is a pure size probe")
	assert.Empty(t, store.bufferCaps, "an empty cache must not cause a scratch buffer allocation")
}

func TestClearCacheIsIdempotent(t *testing.T) {
	store := &fakeStore{
		groups:  []GroupID{1, 2},
		records: []EntryRecord{entryWithURL("a.example/x"), entryWithURL("a.example/y")},
	}
	clearer := NewClearer(store)
	clearer.ClearCache()
	require.Empty(t, store.groups)
	require.Empty(t, store.records)

	firstGroupDeletes := len(store.groupDeleteCalls)
	firstEntryDeletes := len(store.entryDeleteCalls)
	clearer.ClearCache()

	assert.Equal(t, firstGroupDeletes, len(store.groupDeleteCalls), "second run must not issue group deletes")
	assert.Equal(t, firstEntryDeletes, len(store.entryDeleteCalls), "second run must not issue entry deletes")
}

func TestClearCacheStopsGroupPhaseOnUnrecognizedAdvanceError(t *testing.T) {
	store := &fakeStore{
		groups:         []GroupID{1, 2, 3},
		records:        []EntryRecord{entryWithURL("a.example/1")},
		groupNextErr:   fmt.Errorf("cursor handle revoked"),
		groupNextErrAt: 1,
	}
	before := utils.GetMetricValue("urlcache", "group_advance_failed")
	NewClearer(store).ClearCache()

	// The phase ended at the bad advance instead of spinning; only the group yielded before it was deleted.
	assert.Equal(t, []GroupID{1}, store.groupDeleteCalls)
	assert.Equal(t, before+1, utils.GetMetricValue("urlcache", "group_advance_failed"))

	// The entry phase still ran to completion and the call returned normally.
	assert.Equal(t, []string{"a.example/1"}, store.entryDeleteCalls)
	assert.Empty(t, store.records)
}

func TestClearCacheStopsEntryPhaseOnUnrecognizedAdvanceError(t *testing.T) {
	store := &fakeStore{
		records: []EntryRecord{
			entryWithURL("a.example/1"), entryWithURL("b.example/2"), entryWithURL("c.example/3"),
		},
		entryNextErr:   fmt.Errorf("cursor handle revoked"),
		entryNextErrAt: 1,
	}
	before := utils.GetMetricValue("urlcache", "entry_advance_failed")
	NewClearer(store).ClearCache()

	// One record made it through before the bad advance terminated the phase.
	assert.Equal(t, []string{"a.example/1"}, store.entryDeleteCalls)
	assert.Equal(t, before+1, utils.GetMetricValue("urlcache", "entry_advance_failed"))
	assert.Len(t, store.records, 2)
}

func TestClearCacheSkipsPhaseWhoseEnumerationFailsToOpen(t *testing.T) {
	store := &fakeStore{
		groups:        []GroupID{5},
		records:       []EntryRecord{entryWithURL("a.example/1")},
		enumGroupsErr: fmt.Errorf("store detached"),
	}
	beforeGroups := utils.GetMetricValue("urlcache", "group_enum_failed")
	NewClearer(store).ClearCache()

	// The group phase never got a cursor; the entry phase is unaffected.
	assert.Empty(t, store.groupDeleteCalls)
	assert.Equal(t, beforeGroups+1, utils.GetMetricValue("urlcache", "group_enum_failed"))
	assert.Equal(t, []string{"a.example/1"}, store.entryDeleteCalls)

	second := &fakeStore{
		records:        []EntryRecord{entryWithURL("b.example/2")},
		enumEntriesErr: fmt.Errorf("store detached"),
	}
	beforeEntries := utils.GetMetricValue("urlcache", "entry_enum_failed")
	NewClearer(second).ClearCache()

	assert.Empty(t, second.entryDeleteCalls)
	assert.Equal(t, beforeEntries+1, utils.GetMetricValue("urlcache", "entry_enum_failed"))
}

func TestClearedMetricSkipsAlreadyGoneItems(t *testing.T) {
	store := &fakeStore{
		groups:         []GroupID{1, 2, 3},
		groupDeleteErr: map[GroupID]error{2: ErrNotFound},
		records:        []EntryRecord{entryWithURL("a.example/1"), entryWithURL("b.example/2")},
		entryDeleteErr: map[string]error{"b.example/2": ErrNotFound},
	}
	groupsBefore := clearedCount(t, "group")
	entriesBefore := clearedCount(t, "entry")
	NewClearer(store).ClearCache()

	// Items that reported "not found" were advanced past, not counted as cleared.
	assert.Equal(t, groupsBefore+2, clearedCount(t, "group"))
	assert.Equal(t, entriesBefore+1, clearedCount(t, "entry"))
	assert.Equal(t, []GroupID{1, 2, 3}, store.groupDeleteCalls)
	assert.Equal(t, []string{"a.example/1", "b.example/2"}, store.entryDeleteCalls)
}

func TestClearCacheContinuesPastFailedEntryDelete(t *testing.T) {
	store := &fakeStore{
		records: []EntryRecord{entryWithURL("a.example/1"), entryWithURL("b.example/2"), entryWithURL("c.example/3")},
		entryDeleteErr: map[string]error{
			"b.example/2": fmt.Errorf("store busy"),
		},
	}
	NewClearer(store).ClearCache()

	// The failed delete is not retried; the clearer advances with the buffer it already has.
	assert.Equal(t, []string{"a.example/1", "b.example/2", "c.example/3"}, store.entryDeleteCalls)
	require.Len(t, store.records, 1)
	assert.Equal(t, "b.example/2", store.records[0].SourceURL)
}
