// Package meta implements the store's metadata engine: a packed
// binary entry record, multi-secondary-index maintenance, and the
// cache/tombstone state machine, on top of go.etcd.io/bbolt -- an
// embedded, single-writer/multi-reader transactional B-tree engine in
// the same family as the LMDB-class store the spec describes.
// Grounded on awslabs-soci-snapshotter's metadata/db.go, which uses
// the same bucket-of-buckets approach to emulate dupsort indexes that
// bbolt itself doesn't provide natively.
package meta

import (
	"bytes"
	"time"

	store "github.com/doriantaylor/store-digest"
	bolt "go.etcd.io/bbolt"
)

// DB implements store.MetaDriver against a bbolt database file.
type DB struct {
	bolt    *bolt.DB
	algos   []store.Algorithm
	primary store.Algorithm
	expiry  time.Duration
}

// Open opens (creating and initializing if necessary) the metadata
// database at path.
func Open(path string, cfg store.Config) (*DB, error) {
	opts := &bolt.Options{Timeout: 5 * time.Second}
	if cfg.MapSize > 0 {
		opts.InitialMmapSize = int(cfg.MapSize)
	}
	bdb, err := bolt.Open(path, 0600, opts)
	if err != nil {
		return nil, &store.IOError{Op: "opening metadata database " + path, Err: err}
	}

	db := &DB{
		bolt:    bdb,
		algos:   cfg.OrderedAlgorithms(),
		primary: cfg.Primary,
		expiry:  defaultExpirySeconds * time.Second,
	}

	if err := db.init(); err != nil {
		bdb.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) init() error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		ctl, err := tx.CreateBucketIfNotExists(bucketControl)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketEntries); err != nil {
			return err
		}
		for _, a := range db.algos {
			if _, err := tx.CreateBucketIfNotExists(digestBucketName(a)); err != nil {
				return err
			}
		}

		if v := ctl.Get([]byte(ctlVersion)); v != nil {
			return db.checkSchema(ctl)
		}

		now := time.Now()
		if err := ctl.Put([]byte(ctlVersion), formatUint64(uint64(schemaV1))); err != nil {
			return err
		}
		if err := ctl.Put([]byte(ctlCTime), encodeTimeKey(now)); err != nil {
			return err
		}
		if err := ctl.Put([]byte(ctlMTime), encodeTimeKey(now)); err != nil {
			return err
		}
		if err := ctl.Put([]byte(ctlObjects), formatUint64(0)); err != nil {
			return err
		}
		if err := ctl.Put([]byte(ctlDeleted), formatUint64(0)); err != nil {
			return err
		}
		if err := ctl.Put([]byte(ctlBytes), formatUint64(0)); err != nil {
			return err
		}
		if err := ctl.Put([]byte(ctlAlgorithms), []byte(formatAlgorithmList(db.algos))); err != nil {
			return err
		}
		return ctl.Put([]byte(ctlPrimary), []byte(db.primary))
	})
}

// checkSchema validates an existing database: its recorded schema
// version must be the current one, and it must carry every digest
// algorithm the caller configured. Either failure is a
// CorruptStateError. A database with no version key at all never
// reaches checkSchema: init stamps it as a new v1 store.
func (db *DB) checkSchema(ctl *bolt.Bucket) error {
	if v := ctl.Get([]byte(ctlVersion)); !bytes.Equal(v, formatUint64(uint64(schemaV1))) {
		return &store.CorruptStateError{Msg: "unrecognized schema version: " + string(v)}
	}
	existing := parseAlgorithmList(string(ctl.Get([]byte(ctlAlgorithms))))
	have := make(map[store.Algorithm]bool, len(existing))
	for _, a := range existing {
		have[a] = true
	}
	for _, a := range db.algos {
		if !have[a] {
			return &store.CorruptStateError{Msg: "database does not carry digest algorithm " + string(a)}
		}
	}
	return nil
}

// Upgrade stamps the current schema version over a stored version
// number lower than it. It converts no data: no v0 bucket layout is
// read or rewritten. It is a no-op when the version key is absent or
// already current; since Open rejects any stored version other than
// the current one, on a DB returned by Open it changes nothing.
func (db *DB) Upgrade() error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		ctl := tx.Bucket(bucketControl)
		v := ctl.Get([]byte(ctlVersion))
		if v == nil || parseUint64(v) >= uint64(schemaV1) {
			return nil
		}
		return ctl.Put([]byte(ctlVersion), formatUint64(uint64(schemaV1)))
	})
}

// Close implements store.MetaDriver.
func (db *DB) Close() error {
	return db.bolt.Close()
}

// entryState classifies a record for the counter-delta table.
type entryState int

const (
	stateAbsent entryState = iota
	stateLive
	stateTombstone
	stateCache
)

func classify(obj store.Object, found bool) entryState {
	if !found {
		return stateAbsent
	}
	switch {
	case obj.Flags.Cache():
		return stateCache
	case obj.DTime != nil:
		return stateTombstone
	default:
		return stateLive
	}
}

// findEntry resolves obj's configured digests against the digest
// tables, returning the entry-id shared by all of them. A mismatch
// across digests -- one digest matching entry A, another matching
// entry B -- is a genuine digest collision between two independently
// stored objects and is reported as store.DigestCollisionError rather
// than silently picked apart.
func (db *DB) findEntry(tx *bolt.Tx, ds store.DigestSet) (id uint64, found bool, err error) {
	for _, a := range db.algos {
		d, ok := ds.Get(a)
		if !ok || len(d.Raw) == 0 {
			continue
		}
		b := tx.Bucket(digestBucketName(a))
		if b == nil {
			continue
		}
		v := b.Get(d.Raw)
		if v == nil {
			continue
		}
		candidate := decodeID(v)
		if found && candidate != id {
			return 0, false, &store.DigestCollisionError{Algorithm: a, ExistingEntryID: id, NewEntryID: candidate}
		}
		id, found = candidate, true
	}
	return id, found, nil
}

func (db *DB) getEntry(tx *bolt.Tx, id uint64) (store.Object, bool, error) {
	b := tx.Bucket(bucketEntries)
	data := b.Get(encodeID(id))
	if data == nil {
		return store.Object{}, false, nil
	}
	obj, err := unpackRecord(data, db.algos)
	if err != nil {
		return store.Object{}, false, err
	}
	return obj, true, nil
}

func (db *DB) putEntry(tx *bolt.Tx, id uint64, obj store.Object) error {
	b := tx.Bucket(bucketEntries)
	return b.Put(encodeID(id), packRecord(obj, db.algos))
}

// dtimeCacheTransition computes the new DTime and cache-bit for a
// merge, implementing the spec's cache/tombstone state machine: four
// cases keyed by whether the prior and requested records are cache
// entries.
func dtimeCacheTransition(found bool, old store.Object, requestCache bool, suppliedDTime *time.Time, now time.Time, expiry time.Duration) (newDTime *time.Time, newCache bool) {
	wasCache := found && old.Flags.Cache()
	wasTombstone := found && !wasCache && old.DTime != nil

	switch {
	case !found:
		if requestCache {
			if suppliedDTime != nil {
				return suppliedDTime, true
			}
			t := now.Add(expiry)
			return &t, true
		}
		return suppliedDTime, false

	case wasCache && requestCache:
		if suppliedDTime != nil {
			return suppliedDTime, true
		}
		cand := now.Add(expiry)
		if old.DTime != nil && old.DTime.After(cand) {
			cand = *old.DTime
		}
		return &cand, true

	case !wasCache && requestCache:
		if wasTombstone {
			if suppliedDTime != nil {
				return suppliedDTime, true
			}
			t := now.Add(expiry)
			return &t, true
		}
		return suppliedDTime, false

	case wasCache && !requestCache:
		if old.DTime != nil && !old.DTime.After(now) {
			return old.DTime, false
		}
		return nil, false

	default: // !wasCache && !requestCache
		return suppliedDTime, false
	}
}

// mergeFields applies the spec's "subsequent add merges user-settable
// fields; size/ctime/digests are pinned" rule: a non-empty field on
// incoming wins, otherwise the old value is preserved. mtime follows
// its own rule (spec section 4.2 step 2): if preserve, keep old
// outright; else prefer incoming, else old.
func mergeFields(old, incoming store.Object, found, preserve bool) store.Object {
	if !found {
		return incoming
	}
	merged := old
	merged.Digests = old.Digests.Clone()
	if incoming.Type != "" {
		merged.Type = incoming.Type
	}
	if incoming.Charset != "" {
		merged.Charset = incoming.Charset
	}
	if incoming.Language != "" {
		merged.Language = incoming.Language
	}
	if incoming.Encoding != "" {
		merged.Encoding = incoming.Encoding
	}
	if preserve {
		merged.MTime = old.MTime
	} else if !incoming.MTime.IsZero() {
		merged.MTime = incoming.MTime
	}
	return merged
}

// SetMeta implements store.MetaDriver.
func (db *DB) SetMeta(obj store.Object, preserve bool) (store.Object, uint64, bool, error) {
	var (
		merged  store.Object
		id      uint64
		changed bool
	)
	now := time.Now().Truncate(time.Microsecond)

	err := db.bolt.Update(func(tx *bolt.Tx) error {
		resolvedID, found, err := db.findEntry(tx, obj.Digests)
		if err != nil {
			return err
		}

		var old store.Object
		if found {
			old, found, err = db.getEntry(tx, resolvedID)
			if err != nil {
				return err
			}
		}

		m := mergeFields(old, obj, found, preserve)
		if found {
			m.Size = old.Size
			m.CTime = old.CTime
		} else {
			if m.CTime.IsZero() {
				m.CTime = now
			}
			if m.MTime.IsZero() {
				m.MTime = now
			}
		}

		newDTime, newCache := dtimeCacheTransition(found, old, obj.Flags.Cache(), obj.DTime, now, db.expiry)
		m.DTime = newDTime
		m.Flags = m.Flags.WithCache(newCache)

		// The packed record keeps microseconds; hold m to that resolution
		// so the comparison below and the returned record match what is
		// stored.
		m.CTime = m.CTime.Truncate(time.Microsecond)
		m.MTime = m.MTime.Truncate(time.Microsecond)
		if m.DTime != nil {
			t := m.DTime.Truncate(time.Microsecond)
			m.DTime = &t
		}

		sameAsOld := found &&
			old.Type == m.Type && old.Charset == m.Charset &&
			old.Language == m.Language && old.Encoding == m.Encoding &&
			old.MTime.Equal(m.MTime) &&
			timePtrEqual(old.DTime, m.DTime) &&
			old.Flags == m.Flags

		if sameAsOld {
			merged, id, changed = old, resolvedID, false
			return nil
		}
		m.PTime = now

		if !found {
			id, err = tx.Bucket(bucketEntries).NextSequence()
			if err != nil {
				return err
			}
		} else {
			id = resolvedID
		}

		if err := db.writeDigestMappings(tx, id, m.Digests, found); err != nil {
			return err
		}
		if err := db.putEntry(tx, id, m); err != nil {
			return err
		}
		if err := db.reindex(tx, id, old, m, found); err != nil {
			return err
		}
		if err := db.applyCounterDelta(tx, classify(old, found), classify(m, true), old.Size, m.Size); err != nil {
			return err
		}
		if err := touchControlMTime(tx, now); err != nil {
			return err
		}

		merged, changed = m, true
		return nil
	})
	if err != nil {
		return store.Object{}, 0, false, err
	}
	return merged, id, changed, nil
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (db *DB) writeDigestMappings(tx *bolt.Tx, id uint64, ds store.DigestSet, existed bool) error {
	for _, a := range db.algos {
		d, ok := ds.Get(a)
		if !ok || len(d.Raw) == 0 {
			continue
		}
		b, err := tx.CreateBucketIfNotExists(digestBucketName(a))
		if err != nil {
			return err
		}
		if v := b.Get(d.Raw); v != nil {
			if decodeID(v) != id {
				return &store.DigestCollisionError{Algorithm: a, ExistingEntryID: decodeID(v), NewEntryID: id}
			}
			continue
		}
		if err := b.Put(d.Raw, encodeID(id)); err != nil {
			return err
		}
	}
	return nil
}

// reindex updates every secondary index to reflect old -> m for
// entry id, given whether an old record existed.
func (db *DB) reindex(tx *bolt.Tx, id uint64, old, m store.Object, hadOld bool) error {
	var oldSize, newSize []byte
	if hadOld {
		oldSize = encodeUint64(old.Size)
	}
	newSize = encodeUint64(m.Size)
	if err := indexMove(tx, idxSize, oldSize, newSize, id); err != nil {
		return err
	}

	if err := indexMoveTime(tx, idxCTime, timeOrNil(hadOld, old.CTime), &m.CTime, id); err != nil {
		return err
	}
	if err := indexMoveTime(tx, idxMTime, timeOrNil(hadOld, old.MTime), &m.MTime, id); err != nil {
		return err
	}
	if err := indexMoveTime(tx, idxPTime, timeOrNil(hadOld, old.PTime), &m.PTime, id); err != nil {
		return err
	}

	var oldDtimeKey, newDtimeKey []byte
	var oldEtimeKey, newEtimeKey []byte
	if hadOld {
		if old.DTime != nil && !old.Flags.Cache() {
			oldDtimeKey = encodeTimeKey(*old.DTime)
		}
		if old.DTime != nil && old.Flags.Cache() {
			oldEtimeKey = encodeTimeKey(*old.DTime)
		}
	}
	if m.DTime != nil && !m.Flags.Cache() {
		newDtimeKey = encodeTimeKey(*m.DTime)
	}
	if m.DTime != nil && m.Flags.Cache() {
		newEtimeKey = encodeTimeKey(*m.DTime)
	}
	if err := indexMove(tx, idxDTime, oldDtimeKey, newDtimeKey, id); err != nil {
		return err
	}
	if err := indexMove(tx, idxETime, oldEtimeKey, newEtimeKey, id); err != nil {
		return err
	}

	if err := indexMoveToken(tx, idxType, hadOld, old.Type, m.Type, id); err != nil {
		return err
	}
	if err := indexMoveToken(tx, idxLanguage, hadOld, old.Language, m.Language, id); err != nil {
		return err
	}
	if err := indexMoveToken(tx, idxCharset, hadOld, old.Charset, m.Charset, id); err != nil {
		return err
	}
	if err := indexMoveToken(tx, idxEncoding, hadOld, old.Encoding, m.Encoding, id); err != nil {
		return err
	}
	return nil
}

func timeOrNil(hadOld bool, t time.Time) *time.Time {
	if !hadOld {
		return nil
	}
	return &t
}

func indexMoveTime(tx *bolt.Tx, index string, oldT, newT *time.Time, id uint64) error {
	var oldKey, newKey []byte
	if oldT != nil {
		oldKey = encodeTimeKey(*oldT)
	}
	if newT != nil {
		newKey = encodeTimeKey(*newT)
	}
	return indexMove(tx, index, oldKey, newKey, id)
}

func indexMoveToken(tx *bolt.Tx, index string, hadOld bool, oldVal, newVal string, id uint64) error {
	var oldKey, newKey []byte
	if hadOld && oldVal != "" {
		oldKey = []byte(oldVal)
	}
	if newVal != "" {
		newKey = []byte(newVal)
	}
	return indexMove(tx, index, oldKey, newKey, id)
}

// applyCounterDelta adjusts the (objects, deleted, bytes) counters for
// a transition between two entry states. objects counts live records
// and bytes sums their sizes, so a live record that becomes a
// tombstone, or is purged, leaves both; deleted counts tombstones. A
// cache entry counts toward none of the three, whether or not its
// expiry has passed: an expired cache entry is not counted in deleted.
func (db *DB) applyCounterDelta(tx *bolt.Tx, from, to entryState, oldSize, newSize uint64) error {
	ctl := tx.Bucket(bucketControl)
	objects := parseUint64(ctl.Get([]byte(ctlObjects)))
	deleted := parseUint64(ctl.Get([]byte(ctlDeleted)))
	bytes_ := parseUint64(ctl.Get([]byte(ctlBytes)))

	liveBefore := from == stateLive
	liveAfter := to == stateLive
	tombBefore := from == stateTombstone
	tombAfter := to == stateTombstone

	if liveBefore && !liveAfter {
		objects--
		bytes_ -= oldSize
	} else if !liveBefore && liveAfter {
		objects++
		bytes_ += newSize
	} else if liveBefore && liveAfter && oldSize != newSize {
		bytes_ = bytes_ - oldSize + newSize
	}

	if tombBefore && !tombAfter {
		deleted--
	} else if !tombBefore && tombAfter {
		deleted++
	}

	if err := ctl.Put([]byte(ctlObjects), formatUint64(objects)); err != nil {
		return err
	}
	if err := ctl.Put([]byte(ctlDeleted), formatUint64(deleted)); err != nil {
		return err
	}
	return ctl.Put([]byte(ctlBytes), formatUint64(bytes_))
}

func touchControlMTime(tx *bolt.Tx, now time.Time) error {
	return tx.Bucket(bucketControl).Put([]byte(ctlMTime), encodeTimeKey(now))
}

// GetMeta implements store.MetaDriver.
func (db *DB) GetMeta(d store.Digest) (store.Object, uint64, bool, error) {
	var (
		obj   store.Object
		id    uint64
		found bool
	)
	err := db.bolt.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(digestBucketName(d.Algorithm))
		if b == nil {
			return nil
		}
		v := b.Get(d.Raw)
		if v == nil {
			return nil
		}
		id = decodeID(v)
		var err error
		obj, found, err = db.getEntry(tx, id)
		return err
	})
	return obj, id, found, err
}

// MarkDeleted implements store.MetaDriver.
func (db *DB) MarkDeleted(d store.Digest, now time.Time) (store.Object, bool, error) {
	var (
		obj   store.Object
		found bool
	)
	err := db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(digestBucketName(d.Algorithm))
		if b == nil {
			return nil
		}
		v := b.Get(d.Raw)
		if v == nil {
			return nil
		}
		id := decodeID(v)
		old, ok, err := db.getEntry(tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		found = true
		if old.IsTombstone() {
			obj = old
			return nil
		}

		m := old
		t := now
		m.DTime = &t
		m.PTime = now
		m.Flags = m.Flags.WithCache(false)

		if err := db.putEntry(tx, id, m); err != nil {
			return err
		}
		if err := db.reindex(tx, id, old, m, true); err != nil {
			return err
		}
		if err := db.applyCounterDelta(tx, classify(old, true), classify(m, true), old.Size, m.Size); err != nil {
			return err
		}
		if err := touchControlMTime(tx, now); err != nil {
			return err
		}
		obj = m
		return nil
	})
	return obj, found, err
}

// RemoveMeta implements store.MetaDriver.
func (db *DB) RemoveMeta(d store.Digest) (store.Object, bool, error) {
	var (
		obj   store.Object
		found bool
	)
	err := db.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(digestBucketName(d.Algorithm))
		if b == nil {
			return nil
		}
		v := b.Get(d.Raw)
		if v == nil {
			return nil
		}
		id := decodeID(v)
		old, ok, err := db.getEntry(tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		found = true
		obj = old

		if err := db.purgeEntry(tx, id, old); err != nil {
			return err
		}
		return touchControlMTime(tx, time.Now())
	})
	return obj, found, err
}

func (db *DB) purgeEntry(tx *bolt.Tx, id uint64, old store.Object) error {
	for _, a := range db.algos {
		d, ok := old.Digests.Get(a)
		if !ok || len(d.Raw) == 0 {
			continue
		}
		if b := tx.Bucket(digestBucketName(a)); b != nil {
			if err := b.Delete(d.Raw); err != nil {
				return err
			}
		}
	}
	if err := db.reindex(tx, id, old, store.Object{}, true); err != nil {
		return err
	}
	if err := db.applyCounterDelta(tx, classify(old, true), stateAbsent, old.Size, 0); err != nil {
		return err
	}
	return tx.Bucket(bucketEntries).Delete(encodeID(id))
}

// Stats implements store.MetaDriver.
func (db *DB) Stats() (store.Stats, error) {
	var s store.Stats
	err := db.bolt.View(func(tx *bolt.Tx) error {
		ctl := tx.Bucket(bucketControl)
		s.CTime = decodeTime(decodeUint64(ctl.Get([]byte(ctlCTime))))
		s.MTime = decodeTime(decodeUint64(ctl.Get([]byte(ctlMTime))))
		s.Objects = parseUint64(ctl.Get([]byte(ctlObjects)))
		s.Deleted = parseUint64(ctl.Get([]byte(ctlDeleted)))
		s.Bytes = parseUint64(ctl.Get([]byte(ctlBytes)))
		s.Types = indexValueCounts(tx, idxType)
		s.Languages = indexValueCounts(tx, idxLanguage)
		s.Charsets = indexValueCounts(tx, idxCharset)
		s.Encodings = indexValueCounts(tx, idxEncoding)
		return nil
	})
	return s, err
}

// List implements store.MetaDriver. It intersects every supplied
// dimension's matching id set (choosing no particular driving index
// over another since bbolt bucket iteration is cheap relative to the
// record counts this module targets) and inflates the surviving ids.
func (db *DB) List(filter store.Filter) ([]store.Object, error) {
	var out []store.Object
	err := db.bolt.View(func(tx *bolt.Tx) error {
		var sets []map[uint64]bool

		if len(filter.Type) > 0 {
			sets = append(sets, unionTokens(tx, idxType, filter.Type))
		}
		if len(filter.Charset) > 0 {
			sets = append(sets, unionTokens(tx, idxCharset, filter.Charset))
		}
		if len(filter.Encoding) > 0 {
			sets = append(sets, unionTokens(tx, idxEncoding, filter.Encoding))
		}
		if len(filter.Language) > 0 {
			sets = append(sets, unionTokens(tx, idxLanguage, filter.Language))
		}
		if filter.Size != nil {
			lo, hi := sizeRangeKeys(filter.Size)
			s := map[uint64]bool{}
			indexRangeUnion(tx, idxSize, lo, hi, s)
			sets = append(sets, s)
		}
		if filter.CTime != nil {
			sets = append(sets, timeRangeSet(tx, idxCTime, filter.CTime))
		}
		if filter.MTime != nil {
			sets = append(sets, timeRangeSet(tx, idxMTime, filter.MTime))
		}
		if filter.PTime != nil {
			sets = append(sets, timeRangeSet(tx, idxPTime, filter.PTime))
		}
		if filter.DTime != nil {
			sets = append(sets, timeRangeSet(tx, idxDTime, filter.DTime))
		}

		var ids map[uint64]bool
		if len(sets) == 0 {
			ids = allEntryIDs(tx)
		} else {
			ids = intersect(sets)
		}

		entries := tx.Bucket(bucketEntries)
		for id := range ids {
			data := entries.Get(encodeID(id))
			if data == nil {
				continue
			}
			obj, err := unpackRecord(data, db.algos)
			if err != nil {
				return err
			}
			out = append(out, obj)
		}
		return nil
	})
	return out, err
}

func unionTokens(tx *bolt.Tx, index string, values []string) map[uint64]bool {
	raw := make([][]byte, len(values))
	for i, v := range values {
		raw[i] = []byte(v)
	}
	s := map[uint64]bool{}
	indexUnion(tx, index, raw, s)
	return s
}

func sizeRangeKeys(r *store.SizeRange) (lo, hi []byte) {
	if r.Lo != nil {
		lo = encodeUint64(*r.Lo)
	}
	if r.Hi != nil {
		hi = encodeUint64(*r.Hi)
	}
	return
}

func timeRangeSet(tx *bolt.Tx, index string, r *store.TimeRange) map[uint64]bool {
	var lo, hi []byte
	if r.Lo != nil {
		lo = encodeTimeKey(*r.Lo)
	}
	if r.Hi != nil {
		hi = encodeTimeKey(*r.Hi)
	}
	s := map[uint64]bool{}
	indexRangeUnion(tx, index, lo, hi, s)
	return s
}

func allEntryIDs(tx *bolt.Tx) map[uint64]bool {
	out := map[uint64]bool{}
	b := tx.Bucket(bucketEntries)
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		out[decodeID(k)] = true
	}
	return out
}

// Sweep implements store.MetaDriver: it walks the etime index up to
// now, purging every cache entry it finds, one bbolt transaction per
// batch of limit entries (0 means unbounded, one transaction for the
// whole sweep).
func (db *DB) Sweep(now time.Time, limit int) ([]store.Object, error) {
	var swept []store.Object
	for {
		var batch []store.Object
		err := db.bolt.Update(func(tx *bolt.Tx) error {
			outer := tx.Bucket([]byte(idxETime))
			if outer == nil {
				return nil
			}
			hi := encodeTimeKey(now)

			// Collect candidate ids on a read-only walk first. purgeEntry
			// mutates the etime index (via indexRemove's Bucket.Delete /
			// DeleteBucket), and bbolt invalidates a Cursor once the
			// bucket it walks -- or a bucket nested under it -- is
			// mutated by anything other than that same cursor's own
			// Delete. Purging while c/ic are still mid-iteration risks
			// skipped entries or corrupted iteration order.
			var candidates []uint64
			c := outer.Cursor()
		collect:
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				if bytes.Compare(k, hi) > 0 {
					break
				}
				inner := outer.Bucket(k)
				if inner == nil {
					continue
				}
				ic := inner.Cursor()
				for ik, _ := ic.First(); ik != nil; ik, _ = ic.Next() {
					candidates = append(candidates, decodeID(ik))
					if limit > 0 && len(candidates) >= limit {
						break collect
					}
				}
			}

			for _, id := range candidates {
				old, ok, err := db.getEntry(tx, id)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				if err := db.purgeEntry(tx, id, old); err != nil {
					return err
				}
				batch = append(batch, old)
			}
			if len(batch) > 0 {
				return touchControlMTime(tx, now)
			}
			return nil
		})
		if err != nil {
			return swept, err
		}
		swept = append(swept, batch...)
		if len(batch) == 0 || limit <= 0 {
			break
		}
	}
	return swept, nil
}
