// The clearing routine runs in two phases: delete every cache group (flushing the URLs that only that group owns),
// then enumerate and delete whatever ungrouped entries remain. "No more items" and "not found" are loop control;
// the only retry is growing the scratch buffer when the store reports it is too small for the next record.

package urlcache

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pomelo-lab/appkit/pkg/utils"
)

var clearedItemsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "urlcache_cleared_items_total",
	Help: "The total number of cache groups and entries deleted by the clearer.",
}, []string{
	"kind", // Either "group" or "entry".
})

// Clearer empties a URL cache store. It owns no state besides the injected store; the scratch buffer used during
// entry enumeration lives only for the duration of a single ClearCache call.
type Clearer struct {
	store Store
}

// NewClearer is the constructor for Clearer.
func NewClearer(store Store) *Clearer {
	if store == nil {
		utils.RaiseInvariant("urlcache", "nil_store", "Clearer has been constructed without a store.")
	}
	return &Clearer{store: store}
}

// ClearCache deletes every cache group and then every remaining ungrouped entry. The operation is best effort: it
// never reports failure to its caller, treats "not found" as cause to advance rather than abort, and retries
// nothing except the buffer growth described on EntryCursor. All caching benefit is lost until the store is
// repopulated. Not safe for concurrent invocation against the same store.
func (c *Clearer) ClearCache() {
	if c.store == nil {
		return
	}
	c.clearGroups()
	c.clearEntries()
}

// clearGroups deletes every cache group, instructing the store to also flush the URLs owned exclusively by the
// deleted group. Groups that vanish between enumeration and deletion are skipped.
func (c *Clearer) clearGroups() {
	cursor, err := c.store.EnumGroups()
	if errors.Is(err, ErrNoMoreItems) {
		return // No groups exist; proceed to the entry phase.
	}
	if err != nil {
		utils.RaiseInvariant("urlcache", "group_enum_failed",
			"Opening the group enumeration failed unexpectedly.", "error", err)
		return
	}
	defer func() { _ = cursor.Close() }()

	for {
		id, err := cursor.Next()
		if errors.Is(err, ErrNoMoreItems) || errors.Is(err, ErrNotFound) {
			return
		}
		if err != nil {
			// An unrecognized store error would otherwise spin the loop forever; terminate the phase instead.
			utils.RaiseInvariant("urlcache", "group_advance_failed",
				"Advancing the group enumeration failed unexpectedly.", "error", err)
			return
		}
		if err := c.store.DeleteGroup(id, FlushGroupURLs); err != nil {
			// An already-gone group is cause to advance, not to count or complain.
			if !errors.Is(err, ErrNotFound) {
				slog.Warn("Deleting a cache group failed, continuing with the next group.",
					"group", id, "error", err)
			}
			continue
		}
		clearedItemsMetric.WithLabelValues("group").Inc()
	}
}

// clearEntries enumerates every remaining entry and deletes it by its source URL. The scratch buffer is only
// allocated once the store has reported the size of the first record, so an empty cache allocates nothing.
func (c *Clearer) clearEntries() {
	cursor, err := c.store.EnumEntries()
	if err != nil {
		utils.RaiseInvariant("urlcache", "entry_enum_failed",
			"Opening the entry enumeration failed unexpectedly.", "error", err)
		return
	}
	defer func() { _ = cursor.Close() }()

	// Probe the size of the first record without a buffer.
	_, err = cursor.Next(nil)
	if errors.Is(err, ErrNoMoreItems) {
		return // The cache holds no entries.
	}
	var sizeErr *SizeError
	if !errors.As(err, &sizeErr) {
		utils.RaiseInvariant("urlcache", "entry_size_probe_failed",
			"The size probe for the first entry failed unexpectedly.", "error", err)
		return
	}

	buf := make([]byte, sizeErr.Required)
	for {
		n, err := cursor.Next(buf)
		if errors.Is(err, ErrNoMoreItems) {
			return
		}
		if errors.As(err, &sizeErr) {
			// The next record outgrew the scratch buffer; grow to the reported size and retry the same record.
			buf = make([]byte, sizeErr.Required)
			continue
		}
		if err != nil {
			utils.RaiseInvariant("urlcache", "entry_advance_failed",
				"Advancing the entry enumeration failed unexpectedly.", "error", err)
			return
		}

		record, err := DecodeEntry(buf[:n])
		if err != nil {
			// The buffer capacity and the declared record size disagree. Skip the record rather than trust it.
			utils.RaiseInvariant("urlcache", "entry_record_mismatch",
				"Decoding an entry record failed.", "error", err)
			continue
		}
		if err := c.store.DeleteEntry(record.SourceURL); err != nil {
			if !errors.Is(err, ErrNotFound) {
				slog.Warn("Deleting a cache entry failed, continuing with the next entry.",
					"sourceURL", record.SourceURL, "error", err)
			}
			continue
		}
		clearedItemsMetric.WithLabelValues("entry").Inc()
	}
}
