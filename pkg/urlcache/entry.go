// Entry records are exchanged with the store in a fixed binary layout so that the buffer-resize negotiation has
// real teeth: a store writes the encoded record into the caller's scratch buffer and reports the required capacity
// when the buffer is too small.
//
// Layout (big endian):
//
//	[0:4]   struct size (total encoded length, for the capacity invariant)
//	[4:8]   entry type flags
//	[8:12]  use count
//	[12:16] hit rate
//	[16:20] size high half
//	[20:24] size low half
//	[24:56] four int64 unix-nano timestamps: last modified, expires, last access, last sync
//	[56:60] header blob offset
//	[60:64] header blob size
//	[64:]   source URL (uint16 length prefix), local path (uint16 length prefix), header blob

package urlcache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// EntryType flags describe what kind of resource an entry caches.
type EntryType uint32

const (
	NormalEntry EntryType = 1 << iota
	StickyEntry
	CookieEntry
	HistoryEntry
)

const entryHeaderSize = 64

// EntryRecord describes one cached resource. SizeHigh and SizeLow carry the resource size as a 64-bit value split
// across two 32-bit halves; use Size to combine them.
type EntryRecord struct {
	SourceURL    string    // Identifier of the cached resource; the delete key.
	LocalPath    string    // Handle of the local file holding the cached body.
	EntryType    EntryType
	UseCount     uint32
	HitRate      uint32
	SizeHigh     uint32
	SizeLow      uint32
	LastModified time.Time
	Expires      time.Time
	LastAccess   time.Time
	LastSync     time.Time
	HeaderBlob   []byte // Raw response headers; encoded as an offset+size pair into the record.
}

// Size combines the two 32-bit halves of the resource size.
func (r *EntryRecord) Size() uint64 {
	return uint64(r.SizeHigh)<<32 | uint64(r.SizeLow)
}

// SetSize splits a 64-bit resource size into the record's two halves.
func (r *EntryRecord) SetSize(size uint64) {
	r.SizeHigh = uint32(size >> 32)
	r.SizeLow = uint32(size)
}

// EncodedSize returns the number of bytes Encode would produce for this record.
func (r *EntryRecord) EncodedSize() int {
	return entryHeaderSize + 2 + len(r.SourceURL) + 2 + len(r.LocalPath) + len(r.HeaderBlob)
}

// Encode writes the record into buf and returns the number of bytes written. When buf is too small it returns a
// *SizeError carrying the required capacity and leaves buf untouched.
func (r *EntryRecord) Encode(buf []byte) (int, error) {
	total := r.EncodedSize()
	if len(buf) < total {
		return 0, &SizeError{Required: total}
	}
	if len(r.SourceURL) > 0xFFFF || len(r.LocalPath) > 0xFFFF {
		return 0, errors.New("urlcache: source URL or local path too long to encode")
	}

	binary.BigEndian.PutUint32(buf[0:], uint32(total))
	binary.BigEndian.PutUint32(buf[4:], uint32(r.EntryType))
	binary.BigEndian.PutUint32(buf[8:], r.UseCount)
	binary.BigEndian.PutUint32(buf[12:], r.HitRate)
	binary.BigEndian.PutUint32(buf[16:], r.SizeHigh)
	binary.BigEndian.PutUint32(buf[20:], r.SizeLow)
	for i, ts := range []time.Time{r.LastModified, r.Expires, r.LastAccess, r.LastSync} {
		var ns int64
		if !ts.IsZero() {
			ns = ts.UTC().UnixNano()
		}
		binary.BigEndian.PutUint64(buf[24+8*i:], uint64(ns))
	}

	offset := entryHeaderSize
	binary.BigEndian.PutUint16(buf[offset:], uint16(len(r.SourceURL)))
	offset += 2
	offset += copy(buf[offset:], r.SourceURL)
	binary.BigEndian.PutUint16(buf[offset:], uint16(len(r.LocalPath)))
	offset += 2
	offset += copy(buf[offset:], r.LocalPath)

	// The header blob sits at the tail; its location is declared as an offset+size pair in the fixed header.
	binary.BigEndian.PutUint32(buf[56:], uint32(offset))
	binary.BigEndian.PutUint32(buf[60:], uint32(len(r.HeaderBlob)))
	offset += copy(buf[offset:], r.HeaderBlob)

	return offset, nil
}

// DecodeEntry parses an encoded record. The declared struct size must match the negotiated buffer length exactly;
// a mismatch means the caller and the store disagree on capacity and the record cannot be trusted.
func DecodeEntry(buf []byte) (EntryRecord, error) {
	if len(buf) < entryHeaderSize {
		return EntryRecord{}, fmt.Errorf("urlcache: record truncated, got %d bytes", len(buf))
	}
	declared := int(binary.BigEndian.Uint32(buf[0:]))
	if declared != len(buf) {
		return EntryRecord{}, fmt.Errorf("urlcache: declared record size %d does not match buffer size %d",
			declared, len(buf))
	}

	record := EntryRecord{
		EntryType: EntryType(binary.BigEndian.Uint32(buf[4:])),
		UseCount:  binary.BigEndian.Uint32(buf[8:]),
		HitRate:   binary.BigEndian.Uint32(buf[12:]),
		SizeHigh:  binary.BigEndian.Uint32(buf[16:]),
		SizeLow:   binary.BigEndian.Uint32(buf[20:]),
	}
	timestamps := [4]*time.Time{&record.LastModified, &record.Expires, &record.LastAccess, &record.LastSync}
	for i, target := range timestamps {
		if ns := int64(binary.BigEndian.Uint64(buf[24+8*i:])); ns != 0 {
			*target = time.Unix(0, ns).UTC()
		}
	}
	headerOffset := int(binary.BigEndian.Uint32(buf[56:]))
	headerSize := int(binary.BigEndian.Uint32(buf[60:]))

	offset := entryHeaderSize
	readString := func() (string, error) {
		if offset+2 > len(buf) {
			return "", fmt.Errorf("urlcache: record truncated at offset %d", offset)
		}
		length := int(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
		if offset+length > len(buf) {
			return "", fmt.Errorf("urlcache: record truncated at offset %d", offset)
		}
		value := string(buf[offset : offset+length])
		offset += length
		return value, nil
	}

	var err error
	if record.SourceURL, err = readString(); err != nil {
		return EntryRecord{}, err
	}
	if record.LocalPath, err = readString(); err != nil {
		return EntryRecord{}, err
	}
	if headerSize > 0 {
		if headerOffset < entryHeaderSize || headerOffset+headerSize > len(buf) {
			return EntryRecord{}, fmt.Errorf("urlcache: header blob [%d:%d] out of record bounds",
				headerOffset, headerOffset+headerSize)
		}
		record.HeaderBlob = append([]byte(nil), buf[headerOffset:headerOffset+headerSize]...)
	}
	return record, nil
}
