package meta

import (
	"bytes"

	bolt "go.etcd.io/bbolt"
)

// Every secondary index is a bucket of buckets: the outer bucket is
// keyed by the indexed field's encoded value, and each outer key's
// value is itself a bucket keyed by 8-byte entry-id with empty
// values. This is the standard way to emulate LMDB's dupsort-keyed
// secondary tables on top of bbolt, which has no native duplicate-key
// support; grounded on the nested-bucket indexing style in
// awslabs-soci-snapshotter's metadata/db.go.
//
// Range-queryable indexes (size and the five timestamp indexes:
// ctime, mtime, ptime, dtime, etime) use encodeTime
// or encodeUint64 as the outer key, so a cursor walking the outer
// bucket visits values in ascending order. Discrete-set indexes
// (type, language, charset, encoding) use the raw token bytes as the
// outer key and are only ever looked up by exact value, one or more
// at a time, unioned within the dimension.

func indexAdd(tx *bolt.Tx, index string, value []byte, id uint64) error {
	outer, err := tx.CreateBucketIfNotExists([]byte(index))
	if err != nil {
		return err
	}
	inner, err := outer.CreateBucketIfNotExists(value)
	if err != nil {
		return err
	}
	return inner.Put(encodeID(id), nil)
}

func indexRemove(tx *bolt.Tx, index string, value []byte, id uint64) error {
	outer := tx.Bucket([]byte(index))
	if outer == nil {
		return nil
	}
	inner := outer.Bucket(value)
	if inner == nil {
		return nil
	}
	if err := inner.Delete(encodeID(id)); err != nil {
		return err
	}
	if inner.Stats().KeyN == 0 {
		return outer.DeleteBucket(value)
	}
	return nil
}

// indexMove relocates id from oldValue to newValue within index. A
// no-op if the two values are equal.
func indexMove(tx *bolt.Tx, index string, oldValue, newValue []byte, id uint64) error {
	if bytes.Equal(oldValue, newValue) {
		return nil
	}
	if oldValue != nil {
		if err := indexRemove(tx, index, oldValue, id); err != nil {
			return err
		}
	}
	if newValue != nil {
		return indexAdd(tx, index, newValue, id)
	}
	return nil
}

// indexCardinality returns the number of entries indexed under value.
func indexCardinality(tx *bolt.Tx, index string, value []byte) uint64 {
	outer := tx.Bucket([]byte(index))
	if outer == nil {
		return 0
	}
	inner := outer.Bucket(value)
	if inner == nil {
		return 0
	}
	return uint64(inner.Stats().KeyN)
}

// indexValueCounts returns the population of every value currently
// present in index, the breakdown Stats reports for the token-valued
// dimensions.
func indexValueCounts(tx *bolt.Tx, index string) map[string]uint64 {
	outer := tx.Bucket([]byte(index))
	out := map[string]uint64{}
	if outer == nil {
		return out
	}
	c := outer.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if v != nil {
			continue // not a nested bucket
		}
		inner := outer.Bucket(k)
		if inner == nil {
			continue
		}
		out[string(k)] = uint64(inner.Stats().KeyN)
	}
	return out
}

// indexUnion collects the set of entry-ids indexed under any of
// values, used to evaluate a discrete-set (OR-within-dimension)
// predicate.
func indexUnion(tx *bolt.Tx, index string, values [][]byte, into map[uint64]bool) {
	outer := tx.Bucket([]byte(index))
	if outer == nil {
		return
	}
	for _, v := range values {
		inner := outer.Bucket(v)
		if inner == nil {
			continue
		}
		c := inner.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			into[decodeID(k)] = true
		}
	}
}

// indexRangeUnion collects the set of entry-ids whose outer key falls
// within [lo, hi] (either bound may be nil, meaning open). Used to
// evaluate an inclusive-range predicate over one of the
// range-queryable indexes.
func indexRangeUnion(tx *bolt.Tx, index string, lo, hi []byte, into map[uint64]bool) {
	outer := tx.Bucket([]byte(index))
	if outer == nil {
		return
	}
	c := outer.Cursor()
	var k, v []byte
	if lo != nil {
		k, v = c.Seek(lo)
	} else {
		k, v = c.First()
	}
	for ; k != nil; k, v = c.Next() {
		if hi != nil && bytes.Compare(k, hi) > 0 {
			break
		}
		_ = v
		inner := outer.Bucket(k)
		if inner == nil {
			continue
		}
		ic := inner.Cursor()
		for ik, _ := ic.First(); ik != nil; ik, _ = ic.Next() {
			into[decodeID(ik)] = true
		}
	}
}

// intersect returns the intersection of sets, or nil (meaning "no
// constraint applied yet") when sets is empty. An explicit empty,
// non-nil map means the constraint excluded everything.
func intersect(sets []map[uint64]bool) map[uint64]bool {
	if len(sets) == 0 {
		return nil
	}
	out := sets[0]
	for _, s := range sets[1:] {
		next := make(map[uint64]bool, len(out))
		for id := range out {
			if s[id] {
				next[id] = true
			}
		}
		out = next
	}
	return out
}
