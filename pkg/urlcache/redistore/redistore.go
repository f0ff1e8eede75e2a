// The redistore package backs the urlcache.Store capability with Redis so deployments can share one URL cache
// across instances. Groups live in a registry set plus one member set per group; entries are hashes keyed by
// their source URL. Enumeration cursors ride on Redis SCAN cursors, whose terminal zero cursor maps onto the
// "no more items" condition.

package redistore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pomelo-lab/appkit/pkg/urlcache"
)

const scanBatchSize = 64

// Store implements urlcache.Store on a Redis client. Like every urlcache.Store it assumes exclusive access for
// the duration of a clearing pass; concurrent writers may leave groups or entries behind.
type Store struct {
	ctx       context.Context
	client    *redis.Client
	namespace string
	// groupNames maps derived identifiers back to the group names Redis is keyed by. It is filled during group
	// enumeration, which always precedes group deletion in a clearing pass.
	groupNames map[urlcache.GroupID]string
}

// New is the constructor for Store. The context is retained because the urlcache.Store surface is synchronous;
// it bounds every Redis call the store issues.
func New(ctx context.Context, client *redis.Client, namespace string) *Store {
	if namespace == "" {
		namespace = "urlcache"
	}
	return &Store{
		ctx:        ctx,
		client:     client,
		namespace:  namespace,
		groupNames: make(map[urlcache.GroupID]string),
	}
}

func (s *Store) groupsKey() string                { return s.namespace + ":groups" }
func (s *Store) groupKey(name string) string      { return s.namespace + ":group:" + name }
func (s *Store) entryKey(sourceURL string) string { return s.namespace + ":entry:" + sourceURL }

// AddGroup registers a group and its member URLs.
func (s *Store) AddGroup(name string, memberURLs ...string) error {
	if err := s.client.SAdd(s.ctx, s.groupsKey(), name).Err(); err != nil {
		return fmt.Errorf("register group %q: %w", name, err)
	}
	if len(memberURLs) > 0 {
		members := make([]any, len(memberURLs))
		for i, url := range memberURLs {
			members[i] = url
		}
		if err := s.client.SAdd(s.ctx, s.groupKey(name), members...).Err(); err != nil {
			return fmt.Errorf("add members to group %q: %w", name, err)
		}
	}
	return nil
}

// AddEntry stores an entry record as a Redis hash keyed by its source URL.
func (s *Store) AddEntry(record urlcache.EntryRecord) error {
	fields := map[string]any{
		"local_path": record.LocalPath,
		"entry_type": uint32(record.EntryType),
		"use_count":  record.UseCount,
		"hit_rate":   record.HitRate,
		"size":       record.Size(),
		"header":     string(record.HeaderBlob),
	}
	for name, ts := range map[string]time.Time{
		"last_modified": record.LastModified,
		"expires":       record.Expires,
		"last_access":   record.LastAccess,
		"last_sync":     record.LastSync,
	} {
		if !ts.IsZero() {
			fields[name] = ts.UTC().UnixNano()
		}
	}
	if err := s.client.HSet(s.ctx, s.entryKey(record.SourceURL), fields).Err(); err != nil {
		return fmt.Errorf("store entry %q: %w", record.SourceURL, err)
	}
	return nil
}

// Stats reports how many groups and entries the store currently holds.
func (s *Store) Stats() (groups int64, entries int64, err error) {
	groups, err = s.client.SCard(s.ctx, s.groupsKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("count groups: %w", err)
	}
	iter := s.client.Scan(s.ctx, 0, s.entryKey("*"), scanBatchSize).Iterator()
	for iter.Next(s.ctx) {
		entries++
	}
	if err := iter.Err(); err != nil {
		return 0, 0, fmt.Errorf("count entries: %w", err)
	}
	return groups, entries, nil
}

func (s *Store) EnumGroups() (urlcache.GroupCursor, error) {
	names, err := s.client.SMembers(s.ctx, s.groupsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("enumerate groups: %w", err)
	}
	if len(names) == 0 {
		return nil, urlcache.ErrNoMoreItems
	}
	ids := make([]urlcache.GroupID, len(names))
	for i, name := range names {
		id := urlcache.GroupID(xxhash.Sum64String(name))
		ids[i] = id
		s.groupNames[id] = name
	}
	return &groupCursor{ids: ids}, nil
}

func (s *Store) DeleteGroup(id urlcache.GroupID, flags urlcache.DeleteFlag) error {
	name, known := s.groupNames[id]
	if !known {
		return urlcache.ErrNotFound
	}
	removed, err := s.client.SRem(s.ctx, s.groupsKey(), name).Result()
	if err != nil {
		return fmt.Errorf("deregister group %q: %w", name, err)
	}
	if removed == 0 {
		return urlcache.ErrNotFound
	}

	if flags&urlcache.FlushGroupURLs != 0 {
		members, err := s.client.SMembers(s.ctx, s.groupKey(name)).Result()
		if err != nil {
			return fmt.Errorf("list members of group %q: %w", name, err)
		}
		for _, url := range members {
			exclusive, err := s.exclusiveToNoGroup(url)
			if err != nil {
				return err
			}
			if exclusive {
				if err := s.client.Unlink(s.ctx, s.entryKey(url)).Err(); err != nil {
					return fmt.Errorf("flush entry %q: %w", url, err)
				}
			}
		}
	}
	if err := s.client.Unlink(s.ctx, s.groupKey(name)).Err(); err != nil {
		return fmt.Errorf("drop group key %q: %w", name, err)
	}
	delete(s.groupNames, id)
	return nil
}

// exclusiveToNoGroup reports whether url is not claimed by any still-registered group.
func (s *Store) exclusiveToNoGroup(url string) (bool, error) {
	names, err := s.client.SMembers(s.ctx, s.groupsKey()).Result()
	if err != nil {
		return false, fmt.Errorf("list groups: %w", err)
	}
	for _, other := range names {
		member, err := s.client.SIsMember(s.ctx, s.groupKey(other), url).Result()
		if err != nil {
			return false, fmt.Errorf("check membership of %q in %q: %w", url, other, err)
		}
		if member {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) EnumEntries() (urlcache.EntryCursor, error) {
	return &entryCursor{store: s}, nil
}

func (s *Store) DeleteEntry(sourceURL string) error {
	removed, err := s.client.Unlink(s.ctx, s.entryKey(sourceURL)).Result()
	if err != nil {
		return fmt.Errorf("delete entry %q: %w", sourceURL, err)
	}
	if removed == 0 {
		return urlcache.ErrNotFound
	}
	return nil
}

type groupCursor struct {
	ids    []urlcache.GroupID
	pos    int
	closed bool
}

func (c *groupCursor) Next() (urlcache.GroupID, error) {
	if c.closed || c.pos >= len(c.ids) {
		return 0, urlcache.ErrNoMoreItems
	}
	id := c.ids[c.pos]
	c.pos++
	return id, nil
}

func (c *groupCursor) Close() error {
	c.closed = true
	return nil
}

// entryCursor walks the entry keyspace with SCAN. The record fetched last is held as pending until it has been
// encoded into a caller buffer that fits, which implements the grow-and-retry negotiation of urlcache.EntryCursor.
type entryCursor struct {
	store     *Store
	cursor    uint64
	batch     []string // Keys from the current SCAN page not yet handed out.
	exhausted bool
	pending   *urlcache.EntryRecord
	closed    bool
}

func (c *entryCursor) Next(buf []byte) (int, error) {
	if c.closed {
		return 0, urlcache.ErrNoMoreItems
	}
	if c.pending == nil {
		record, err := c.fetchNext()
		if err != nil {
			return 0, err
		}
		c.pending = record
	}
	n, err := c.pending.Encode(buf)
	if err != nil {
		return 0, err // A *SizeError keeps the record pending for the retry.
	}
	c.pending = nil
	return n, nil
}

// fetchNext pulls SCAN pages until it finds an existing entry key and reads its record.
func (c *entryCursor) fetchNext() (*urlcache.EntryRecord, error) {
	prefixLen := len(c.store.entryKey(""))
	for {
		if len(c.batch) == 0 {
			if c.exhausted {
				return nil, urlcache.ErrNoMoreItems
			}
			keys, next, err := c.store.client.Scan(c.store.ctx, c.cursor,
				c.store.entryKey("*"), scanBatchSize).Result()
			if err != nil {
				return nil, fmt.Errorf("scan entries: %w", err)
			}
			c.cursor = next
			c.batch = keys
			if next == 0 {
				c.exhausted = true
			}
			continue
		}
		key := c.batch[0]
		c.batch = c.batch[1:]
		record, found, err := c.store.readEntry(key, key[prefixLen:])
		if err != nil {
			return nil, err
		}
		if found {
			return &record, nil
		}
		// Deleted between the SCAN page and the read; move on.
	}
}

// readEntry loads an entry hash back into a record. found is false when the key vanished.
func (s *Store) readEntry(key, sourceURL string) (urlcache.EntryRecord, bool, error) {
	fields, err := s.client.HGetAll(s.ctx, key).Result()
	if err != nil {
		return urlcache.EntryRecord{}, false, fmt.Errorf("read entry %q: %w", key, err)
	}
	if len(fields) == 0 {
		return urlcache.EntryRecord{}, false, nil
	}
	record := urlcache.EntryRecord{
		SourceURL:  sourceURL,
		LocalPath:  fields["local_path"],
		HeaderBlob: []byte(fields["header"]),
	}
	if len(record.HeaderBlob) == 0 {
		record.HeaderBlob = nil
	}
	parseUint32 := func(name string) uint32 {
		value, _ := strconv.ParseUint(fields[name], 10, 32)
		return uint32(value)
	}
	record.EntryType = urlcache.EntryType(parseUint32("entry_type"))
	record.UseCount = parseUint32("use_count")
	record.HitRate = parseUint32("hit_rate")
	if size, err := strconv.ParseUint(fields["size"], 10, 64); err == nil {
		record.SetSize(size)
	}
	for name, target := range map[string]*time.Time{
		"last_modified": &record.LastModified,
		"expires":       &record.Expires,
		"last_access":   &record.LastAccess,
		"last_sync":     &record.LastSync,
	} {
		if raw, present := fields[name]; present {
			if ns, err := strconv.ParseInt(raw, 10, 64); err == nil {
				*target = time.Unix(0, ns).UTC()
			}
		}
	}
	return record, true, nil
}

func (c *entryCursor) Close() error {
	c.closed = true
	c.pending = nil
	return nil
}
