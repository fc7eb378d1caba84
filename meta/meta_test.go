package meta

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	store "github.com/doriantaylor/store-digest"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir, err := os.MkdirTemp("", "metadb")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg, err := store.NewConfig(dir, store.WithAlgorithms(store.SHA256, store.MD5), store.WithPrimary(store.SHA256))
	if err != nil {
		t.Fatal(err)
	}
	db, err := Open(filepath.Join(dir, "meta.db"), cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func digestFor(raw string) store.Digest {
	b := make([]byte, store.SHA256.Size())
	copy(b, raw)
	return store.Digest{Algorithm: store.SHA256, Raw: b}
}

func digestSet(raw string) store.DigestSet {
	return store.DigestSet{store.SHA256: digestFor(raw)}
}

func TestSetMetaCreate(t *testing.T) {
	db := newTestDB(t)

	obj := store.Object{Digests: digestSet("a"), Size: 9, Type: "text/plain"}
	merged, id, changed, err := db.SetMeta(obj, false)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected changed on first insert")
	}
	if id == 0 {
		t.Fatal("expected nonzero entry id")
	}
	if merged.CTime.IsZero() || merged.MTime.IsZero() || merged.PTime.IsZero() {
		t.Fatal("expected ctime/mtime/ptime to be set on creation")
	}
	if merged.DTime != nil {
		t.Fatal("expected no dtime on a fresh live record")
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Objects != 1 || stats.Deleted != 0 || stats.Bytes != 9 {
		t.Fatalf("stats = %+v, want objects=1 deleted=0 bytes=9", stats)
	}
}

func TestSetMetaIdempotent(t *testing.T) {
	db := newTestDB(t)
	obj := store.Object{Digests: digestSet("a"), Size: 9, Type: "text/plain", MTime: time.Now()}

	_, id1, changed1, err := db.SetMeta(obj, true)
	if err != nil {
		t.Fatal(err)
	}
	if !changed1 {
		t.Fatal("expected changed on first insert")
	}

	_, id2, changed2, err := db.SetMeta(obj, true)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("expected same entry id, got %d and %d", id1, id2)
	}
	if changed2 {
		t.Fatal("expected no-op on identical re-add with preserve=true")
	}
}

func TestSetMetaPreserveKeepsOldMTime(t *testing.T) {
	db := newTestDB(t)
	t1 := time.Now()
	obj := store.Object{Digests: digestSet("a"), Size: 9, Type: "text/plain", MTime: t1}

	first, _, changed1, err := db.SetMeta(obj, false)
	if err != nil {
		t.Fatal(err)
	}
	if !changed1 {
		t.Fatal("expected changed on first insert")
	}

	t2 := t1.Add(10 * time.Second)
	again := store.Object{Digests: digestSet("a"), Size: 9, Type: "text/plain", MTime: t2}
	merged, _, changed2, err := db.SetMeta(again, true)
	if err != nil {
		t.Fatal(err)
	}
	if changed2 {
		t.Fatal("expected preserve=true with a different mtime to report no change")
	}
	if !merged.MTime.Equal(first.MTime) {
		t.Fatalf("mtime = %s, want unchanged old mtime %s", merged.MTime, first.MTime)
	}
}

func TestMarkDeletedAndResurrect(t *testing.T) {
	db := newTestDB(t)
	ds := digestSet("b")
	obj := store.Object{Digests: ds, Size: 1, Type: "text/plain"}

	if _, _, _, err := db.SetMeta(obj, false); err != nil {
		t.Fatal(err)
	}

	d := digestFor("b")
	deleted, found, err := db.MarkDeleted(d, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected to find the record")
	}
	if deleted.DTime == nil {
		t.Fatal("expected dtime to be set after mark-deleted")
	}
	if !deleted.IsTombstone() {
		t.Fatal("expected record to be a tombstone")
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Objects != 0 || stats.Deleted != 1 {
		t.Fatalf("stats after delete = %+v, want objects=0 deleted=1", stats)
	}

	resurrected, _, changed, err := db.SetMeta(store.Object{Digests: ds, Size: 1, Type: "text/plain"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("expected resurrection to count as a change")
	}
	if resurrected.DTime != nil {
		t.Fatal("expected dtime cleared after resurrection")
	}

	stats, err = db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Objects != 1 || stats.Deleted != 0 {
		t.Fatalf("stats after resurrection = %+v, want objects=1 deleted=0", stats)
	}
}

func TestRemoveMetaForgets(t *testing.T) {
	db := newTestDB(t)
	ds := digestSet("c")
	if _, _, _, err := db.SetMeta(store.Object{Digests: ds, Size: 4}, false); err != nil {
		t.Fatal(err)
	}

	d := digestFor("c")
	_, found, err := db.RemoveMeta(d)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected to find the record to forget")
	}

	_, _, found, err = db.GetMeta(d)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected record to be gone after forget")
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Objects != 0 || stats.Deleted != 0 || stats.Bytes != 0 {
		t.Fatalf("stats after forget = %+v, want all zero", stats)
	}
}

func TestSetMetaSharedDigestMergesIntoExistingEntry(t *testing.T) {
	db := newTestDB(t)
	d := digestFor("shared")

	obj1 := store.Object{Digests: store.DigestSet{store.SHA256: d}, Size: 1}
	if _, _, _, err := db.SetMeta(obj1, false); err != nil {
		t.Fatal(err)
	}

	// A second object with the SAME sha-256 and an md5 that has never
	// been seen.
	other := make([]byte, store.MD5.Size())
	copy(other, "different")
	obj2 := store.Object{Digests: store.DigestSet{
		store.SHA256: d,
		store.MD5:    store.Digest{Algorithm: store.MD5, Raw: other},
	}, Size: 2}

	// findEntry finds no md5 row and resolves the sha-256 to the
	// existing entry. A collision is reported only when two digests
	// resolve to different entry ids, so this is a merge into the
	// existing record, whose size and digests stay pinned.
	merged, _, _, err := db.SetMeta(obj2, false)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Size != 1 {
		t.Fatalf("expected size to stay pinned at 1, got %d", merged.Size)
	}
}

func TestList(t *testing.T) {
	db := newTestDB(t)
	if _, _, _, err := db.SetMeta(store.Object{Digests: digestSet("x"), Size: 10, Type: "text/plain"}, false); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := db.SetMeta(store.Object{Digests: digestSet("y"), Size: 20, Type: "application/json"}, false); err != nil {
		t.Fatal(err)
	}

	objs, err := db.List(store.Filter{Type: []string{"text/plain"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 1 || objs[0].Size != 10 {
		t.Fatalf("filtered list = %+v, want one record of size 10", objs)
	}

	lo := uint64(15)
	objs, err = db.List(store.Filter{Size: &store.SizeRange{Lo: &lo}})
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 1 || objs[0].Size != 20 {
		t.Fatalf("range-filtered list = %+v, want one record of size 20", objs)
	}
}

func TestSweepExpiresCacheEntries(t *testing.T) {
	db := newTestDB(t)
	past := time.Now().Add(-time.Hour)
	obj := store.Object{
		Digests: digestSet("cached"),
		Size:    5,
		Flags:   store.Flags(0).WithCache(true),
		DTime:   &past,
	}
	if _, _, _, err := db.SetMeta(obj, false); err != nil {
		t.Fatal(err)
	}

	swept, err := db.Sweep(time.Now(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(swept) != 1 {
		t.Fatalf("expected to sweep 1 entry, got %d", len(swept))
	}

	_, _, found, err := db.GetMeta(digestFor("cached"))
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected swept cache entry to be gone")
	}
}

// TestSweepManyEntriesShareIndexBuckets exercises Sweep against more
// than one expired cache entry so that the etime index has both an
// inner bucket holding multiple ids (two entries sharing the exact
// same expiry instant) and multiple outer time buckets to walk, the
// shape that would expose a cursor invalidated by mutating its own
// bucket mid-iteration.
func TestSweepManyEntriesShareIndexBuckets(t *testing.T) {
	db := newTestDB(t)
	past := time.Now().Add(-time.Hour)
	earlier := past.Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	cache := func(raw string, dtime time.Time) store.Object {
		return store.Object{
			Digests: digestSet(raw),
			Size:    1,
			Flags:   store.Flags(0).WithCache(true),
			DTime:   &dtime,
		}
	}

	// Two entries share the same expiry instant (one inner bucket, two
	// ids); a third expires at a distinct, earlier instant (a second
	// outer bucket); a fourth is not yet expired and must survive.
	for _, obj := range []store.Object{
		cache("expired-a", past),
		cache("expired-b", past),
		cache("expired-c", earlier),
		cache("not-expired", future),
	} {
		if _, _, _, err := db.SetMeta(obj, false); err != nil {
			t.Fatal(err)
		}
	}

	swept, err := db.Sweep(time.Now(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(swept) != 3 {
		t.Fatalf("expected to sweep 3 entries, got %d", len(swept))
	}

	for _, raw := range []string{"expired-a", "expired-b", "expired-c"} {
		if _, _, found, err := db.GetMeta(digestFor(raw)); err != nil {
			t.Fatal(err)
		} else if found {
			t.Fatalf("expected %s to be swept", raw)
		}
	}

	_, _, found, err := db.GetMeta(digestFor("not-expired"))
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected not-yet-expired cache entry to survive the sweep")
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Objects != 0 || stats.Deleted != 0 {
		t.Fatalf("stats after sweep = %+v, want objects=0 deleted=0 (swept entries are purged, survivor is an unexpired cache entry)", stats)
	}
}
