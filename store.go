package store

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
)

// BlobDriver is the filesystem half of a Driver: temp-file creation,
// atomic settle-from-temp, blob read, and blob erase.
type BlobDriver interface {
	// CreateTemp returns a new, empty temp file under the driver's
	// temp area, ready to be written and later passed to Settle.
	CreateTemp() (*os.File, error)

	// Settle finalizes tmp as the blob identified by primary. tmp must
	// have come from CreateTemp on the same driver. If overwrite is
	// false and the target already exists, tmp is discarded and no
	// error is returned.
	Settle(primary Digest, tmp *os.File, mtime time.Time, overwrite bool) error

	// Open returns an Opener for the blob identified by primary, and
	// whether it exists. A nil Opener with exists == false means the
	// blob is absent; a non-nil error means the path exists but is not
	// a readable regular file (CorruptStateError).
	Open(primary Digest) (opener Opener, exists bool, err error)

	// Erase removes the blob identified by primary, returning a handle
	// still open on its (now unlinked) contents so the caller can read
	// them before they vanish. Returns nil, nil if the blob is already
	// absent.
	Erase(primary Digest) (ReadCloser, error)
}

// MetaDriver is the metadata-engine half of a Driver.
type MetaDriver interface {
	// SetMeta performs the transactional merge-or-create described by
	// the spec: resolve or allocate an entry-id, merge obj with any
	// existing record, update indexes and counters, and return the
	// merged record. changed is false (and merged equals the prior
	// record) when the call was a no-op.
	SetMeta(obj Object, preserve bool) (merged Object, entryID uint64, changed bool, err error)

	// GetMeta resolves d via its algorithm's digest table and returns
	// the inflated record, if any.
	GetMeta(d Digest) (obj Object, entryID uint64, found bool, err error)

	// MarkDeleted tombstones the live record for d: sets DTime=now,
	// moves index membership, adjusts counters. A no-op if already a
	// tombstone.
	MarkDeleted(d Digest, now time.Time) (obj Object, found bool, err error)

	// RemoveMeta purges the entry for d and every index reference to
	// it (the "forget" operation).
	RemoveMeta(d Digest) (obj Object, found bool, err error)

	// Stats returns the current counters and index-population
	// breakdown.
	Stats() (Stats, error)

	// List runs the multi-dimensional query described by the spec.
	List(filter Filter) ([]Object, error)

	// Sweep forgets every cache entry whose expiry is at or before
	// now, up to limit entries (0 means unbounded), returning the
	// records it forgot.
	Sweep(now time.Time, limit int) ([]Object, error)

	// Close releases the metadata engine's resources.
	Close() error
}

// Driver composes a blob filesystem and a metadata engine under one
// transactional envelope. The one implementation this module ships,
// package backend's "bolt" driver, composes package blob's filesystem
// store with package meta's bbolt-backed engine.
type Driver interface {
	BlobDriver
	MetaDriver
}

// AddOptions carries the user-settable fields of an Add call. All
// fields are optional.
type AddOptions struct {
	Type     string
	Charset  string
	Language string
	Encoding string
	MTime    time.Time
	Strict   bool
	Preserve bool
}

// Store is the composition of a Driver under the transactional
// envelope described in spec section 4.4: add, get, remove, forget,
// stats, list, and the cache-expiry sweep.
type Store struct {
	driver Driver
	cfg    Config
}

// New wraps driver as a Store governed by cfg. cfg must already be
// valid (see Config.Validate); New does not open or create anything,
// it composes what the caller's chosen backend has already opened.
func New(driver Driver, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if driver == nil {
		return nil, &ArgumentError{Msg: "nil driver"}
	}
	return &Store{driver: driver, cfg: cfg}, nil
}

// Config returns the configuration the store was opened with.
func (s *Store) Config() Config { return s.cfg }

// Close releases the store's resources.
func (s *Store) Close() error { return s.driver.Close() }

// Add scans src through every configured digest algorithm, computing
// its size and a MIME-detection sample in one pass, then performs the
// transactional merge-or-create described by spec section 4.4: write
// the scanned bytes to a temp blob, call SetMeta, and settle the temp
// blob into place only if SetMeta reports a change. The returned
// Object's Fresh field is true iff SetMeta reported a change or a
// resurrection.
func (s *Store) Add(ctx context.Context, src Source, opts AddOptions) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmp, err := s.driver.CreateTemp()
	if err != nil {
		return nil, errors.Wrap(err, "creating temp blob")
	}
	ok := false
	defer func() {
		if !ok {
			name := tmp.Name()
			tmp.Close()
			os.Remove(name)
		}
	}()

	scanned, err := Scan(ctx, src, tmp, s.cfg.OrderedAlgorithms(), opts, s.sniff)
	if err != nil {
		return nil, errors.Wrap(err, "scanning object")
	}

	mtime := opts.MTime
	if mtime.IsZero() {
		mtime = scanned.SourceMTime
	}

	candidate := Object{
		Digests:  scanned.Digests,
		Size:     scanned.Size,
		MTime:    mtime,
		Type:     scanned.Type,
		Charset:  scanned.Charset,
		Language: scanned.Language,
		Encoding: scanned.Encoding,
	}

	merged, _, changed, err := s.driver.SetMeta(candidate, opts.Preserve)
	if err != nil {
		return nil, errors.Wrap(err, "updating metadata")
	}

	primary, primaryOK := merged.Digests.Get(s.cfg.Primary)
	if !primaryOK {
		return nil, &CorruptStateError{Msg: "merged record missing primary digest"}
	}

	if changed && merged.IsLive() {
		if err := tmp.Sync(); err != nil {
			return nil, errors.Wrap(err, "flushing temp blob")
		}
		if err := s.driver.Settle(primary, tmp, merged.MTime, false); err != nil {
			return nil, errors.Wrap(err, "settling blob")
		}
		ok = true
	}

	merged.Fresh = changed
	if err := s.attachBlob(&merged, primary, false); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Get resolves d and pairs it with a blob read handle. Returns nil,
// nil if d is not known to the store.
func (s *Store) Get(ctx context.Context, d Digest, direct bool) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obj, _, found, err := s.driver.GetMeta(d)
	if err != nil {
		return nil, errors.Wrap(err, "getting metadata")
	}
	if !found {
		return nil, nil
	}
	if obj.IsLive() {
		primary, ok := obj.Digests.Get(s.cfg.Primary)
		if !ok {
			return nil, &CorruptStateError{Msg: "record missing primary digest"}
		}
		if err := s.attachBlob(&obj, primary, direct); err != nil {
			return nil, err
		}
	}
	return &obj, nil
}

// Remove marks the object identified by d deleted. If forget is true
// it is purged outright (equivalent to Forget) instead of tombstoned.
// The blob, if any, is erased either way, and the returned Object's
// Open handle (if non-nil) still works: Erase hands back a handle on
// the blob's now-unlinked contents.
func (s *Store) Remove(ctx context.Context, d Digest, forget bool) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		obj   Object
		found bool
		err   error
	)
	if forget {
		obj, found, err = s.driver.RemoveMeta(d)
	} else {
		obj, found, err = s.driver.MarkDeleted(d, time.Now())
	}
	if err != nil {
		return nil, errors.Wrap(err, "updating metadata")
	}
	if !found {
		return nil, nil
	}

	primary, ok := obj.Digests.Get(s.cfg.Primary)
	if !ok {
		return &obj, nil
	}
	rc, err := s.driver.Erase(primary)
	if err != nil {
		return nil, errors.Wrap(err, "erasing blob")
	}
	if rc != nil {
		obj.Open = func() (ReadCloser, error) { return rc, nil }
	}
	return &obj, nil
}

// Forget is Remove(ctx, d, true): it purges the entry and every index
// reference to it, in addition to erasing the blob.
func (s *Store) Forget(ctx context.Context, d Digest) (*Object, error) {
	return s.Remove(ctx, d, true)
}

// Stats returns the store's current counters and index breakdown.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	return s.driver.Stats()
}

// List runs filter against the store's secondary indexes and returns
// every matching record.
func (s *Store) List(ctx context.Context, filter Filter) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.driver.List(filter)
}

// Sweep forgets every cache entry whose expiry has passed as of now,
// up to limit entries per call (0 means unbounded). It is the natural
// extension the spec names but does not itself schedule: no goroutine
// is started here, a caller drives its own cadence.
func (s *Store) Sweep(ctx context.Context, now time.Time, limit int) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.driver.Sweep(now, limit)
}

func (s *Store) attachBlob(obj *Object, primary Digest, direct bool) error {
	opener, exists, err := s.driver.Open(primary)
	if err != nil {
		return errors.Wrap(err, "opening blob")
	}
	if !exists {
		obj.Open = nil
		return nil
	}
	if !direct {
		obj.Open = opener
		return nil
	}
	rc, err := opener()
	if err != nil {
		return errors.Wrap(err, "opening blob directly")
	}
	obj.Open = func() (ReadCloser, error) { return rc, nil }
	return nil
}

func (s *Store) sniff(sample []byte) string {
	return defaultSniff(sample)
}
