package store

import "testing"

func TestFlagsCheckStates(t *testing.T) {
	var f Flags
	f = f.WithContentType(Verified)
	f = f.WithCharset(Invalid)
	f = f.WithEncoding(Recheck)

	if f.ContentType() != Verified {
		t.Errorf("ContentType() = %v, want Verified", f.ContentType())
	}
	if f.Charset() != Invalid {
		t.Errorf("Charset() = %v, want Invalid", f.Charset())
	}
	if f.Encoding() != Recheck {
		t.Errorf("Encoding() = %v, want Recheck", f.Encoding())
	}
	if f.Syntax() != Unverified {
		t.Errorf("Syntax() = %v, want Unverified (untouched)", f.Syntax())
	}
}

func TestFlagsCacheBit(t *testing.T) {
	var f Flags
	if f.Cache() {
		t.Fatal("zero-value Flags should not be cache")
	}
	f = f.WithCache(true)
	if !f.Cache() {
		t.Fatal("expected cache bit set")
	}
	f = f.WithContentType(Verified)
	if !f.Cache() {
		t.Fatal("setting an unrelated check state cleared the cache bit")
	}
	f = f.WithCache(false)
	if f.Cache() {
		t.Fatal("expected cache bit cleared")
	}
}

func TestObjectLifecycleClassification(t *testing.T) {
	live := Object{}
	if !live.IsLive() || live.IsTombstone() || live.IsCacheEntry() {
		t.Errorf("live object misclassified: %+v", live)
	}

	past := Object{}
	tomb := past
	now := past.MTime
	tomb.DTime = &now
	if tomb.IsLive() || !tomb.IsTombstone() || tomb.IsCacheEntry() {
		t.Errorf("tombstone misclassified: %+v", tomb)
	}

	cacheEntry := Object{Flags: Flags(0).WithCache(true)}
	cacheEntry.DTime = &now
	if !cacheEntry.IsLive() || cacheEntry.IsTombstone() || !cacheEntry.IsCacheEntry() {
		t.Errorf("cache entry misclassified: %+v", cacheEntry)
	}
}
