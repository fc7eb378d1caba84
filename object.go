package store

import "time"

// CheckState is the validation state of one checkable field (content
// type, charset, encoding, or syntax).
type CheckState uint8

// The four validation states a checkable field can be in.
const (
	Unverified CheckState = iota
	Invalid
	Recheck
	Verified
)

// Flags bit layout: four 2-bit check-state pairs, then the cache bit.
const (
	flagsContentTypeShift = 0
	flagsCharsetShift     = 2
	flagsEncodingShift    = 4
	flagsSyntaxShift      = 6
	flagsCacheBit         = Flags(1) << 8
	flagsCheckMask        = Flags(0x3)
)

// Flags is the validation-flags bitfield plus the cache bit (bit 8).
type Flags uint16

func (f Flags) check(shift uint) CheckState {
	return CheckState((f >> shift) & flagsCheckMask)
}

func (f Flags) withCheck(shift uint, s CheckState) Flags {
	return (f &^ (flagsCheckMask << shift)) | (Flags(s) << shift)
}

// ContentType returns the content-type validation state.
func (f Flags) ContentType() CheckState { return f.check(flagsContentTypeShift) }

// WithContentType returns f with the content-type validation state set to s.
func (f Flags) WithContentType(s CheckState) Flags { return f.withCheck(flagsContentTypeShift, s) }

// Charset returns the charset validation state.
func (f Flags) Charset() CheckState { return f.check(flagsCharsetShift) }

// WithCharset returns f with the charset validation state set to s.
func (f Flags) WithCharset(s CheckState) Flags { return f.withCheck(flagsCharsetShift, s) }

// Encoding returns the encoding validation state.
func (f Flags) Encoding() CheckState { return f.check(flagsEncodingShift) }

// WithEncoding returns f with the encoding validation state set to s.
func (f Flags) WithEncoding(s CheckState) Flags { return f.withCheck(flagsEncodingShift, s) }

// Syntax returns the syntax validation state.
func (f Flags) Syntax() CheckState { return f.check(flagsSyntaxShift) }

// WithSyntax returns f with the syntax validation state set to s.
func (f Flags) WithSyntax(s CheckState) Flags { return f.withCheck(flagsSyntaxShift, s) }

// Cache reports whether bit 8 (the cache bit) is set.
func (f Flags) Cache() bool { return f&flagsCacheBit != 0 }

// WithCache returns f with the cache bit set to v.
func (f Flags) WithCache(v bool) Flags {
	if v {
		return f | flagsCacheBit
	}
	return f &^ flagsCacheBit
}

// Object is the in-memory representation of one stored item: its
// digests, size, timestamps, user-manipulable attributes, and
// validation-flags byte.
type Object struct {
	Digests DigestSet
	Size    uint64

	CTime time.Time  // set once, on first insert; never changes.
	MTime time.Time  // user-settable; defaults to source mtime or now.
	PTime time.Time  // set to now whenever any other field changes.
	DTime *time.Time // tombstone marker, or cache expiry when Flags.Cache().

	Type     string
	Charset  string
	Language string
	Encoding string
	Flags    Flags

	// Fresh is set by Store.Add: true iff the call produced a new or
	// changed record, including a resurrection. It carries no meaning
	// outside of an Add result and is never persisted.
	Fresh bool

	// Open, when non-nil, returns a fresh read handle on the object's
	// blob. It is nil for a tombstone (the blob has been erased). A
	// handle obtained via Store.Get(..., direct=true) is already open
	// the first time Open is called; otherwise each call opens the
	// blob afresh, so a large result set doesn't have to hold file
	// descriptors it may never use.
	Open Opener
}

// Opener lazily produces a read handle on a blob.
type Opener func() (ReadCloser, error)

// ReadCloser is the minimal blob-reading surface; it is satisfied by
// *os.File and is kept as its own type so package blob need not expose
// os.File directly in its API.
type ReadCloser interface {
	Read(p []byte) (int, error)
	Close() error
}

// IsTombstone reports whether o is a tombstone: deleted and not a
// cache entry.
func (o Object) IsTombstone() bool {
	return o.DTime != nil && !o.Flags.Cache()
}

// IsLive reports whether o's blob is present on disk: true for an
// ordinary record (no DTime) and for a cache entry, whose DTime holds
// its expiry rather than a tombstone time.
func (o Object) IsLive() bool {
	return o.DTime == nil || o.Flags.Cache()
}

// IsCacheEntry reports whether o is a cache entry (DTime, if set, is
// an expiry rather than a tombstone time).
func (o Object) IsCacheEntry() bool {
	return o.Flags.Cache()
}

// Stats summarizes the store's current counters and the population of
// each of its token-valued secondary indexes.
type Stats struct {
	CTime   time.Time
	MTime   time.Time
	Objects uint64
	Deleted uint64
	Bytes   uint64

	Types     map[string]uint64
	Languages map[string]uint64
	Charsets  map[string]uint64
	Encodings map[string]uint64
}

// SizeRange is an inclusive range over Object.Size. A nil bound is
// open on that side.
type SizeRange struct {
	Lo, Hi *uint64
}

// TimeRange is an inclusive range over one of Object's timestamp
// fields. A nil bound is open on that side.
type TimeRange struct {
	Lo, Hi *time.Time
}

// Filter is the predicate passed to Store.List. Type, Charset,
// Encoding, and Language are discrete sets, ORed within each
// dimension; Size and the four timestamp fields are inclusive ranges.
// All supplied dimensions are ANDed together.
type Filter struct {
	Type     []string
	Charset  []string
	Encoding []string
	Language []string

	Size  *SizeRange
	CTime *TimeRange
	MTime *TimeRange
	PTime *TimeRange
	DTime *TimeRange
}
