// Package testutil holds driver-agnostic conformance tests, runnable
// against any store.Driver implementation via a factory function.
package testutil

import (
	"bytes"
	"context"
	"testing"
	"testing/quick"
	"time"

	store "github.com/doriantaylor/store-digest"
)

// RoundTrip property-tests that every blob written through Add can be
// read back unchanged through Get, for a store built fresh by
// newStore for each trial.
func RoundTrip(ctx context.Context, t *testing.T, newStore func() *store.Store) {
	f := func(data []byte) bool {
		s := newStore()
		defer s.Close()

		added, err := s.Add(ctx, store.Source{Reader: bytes.NewReader(data)}, store.AddOptions{})
		if err != nil {
			t.Logf("add: %s", err)
			return false
		}
		primary, ok := added.Digests.Get(s.Config().Primary)
		if !ok {
			t.Log("added object missing primary digest")
			return false
		}

		got, err := s.Get(ctx, primary, true)
		if err != nil {
			t.Logf("get: %s", err)
			return false
		}
		if got == nil || got.Open == nil {
			t.Log("expected a live, readable object")
			return false
		}
		rc, err := got.Open()
		if err != nil {
			t.Logf("open: %s", err)
			return false
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			t.Logf("read: %s", err)
			return false
		}
		return bytes.Equal(buf.Bytes(), data)
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 30}); err != nil {
		t.Error(err)
	}
}

// Idempotence property-tests that re-adding the same bytes with
// Preserve set never changes the stored record on the second call,
// even when the second call supplies a different mtime: Preserve
// means keep the old mtime outright, not "only a no-op if nothing
// changed".
func Idempotence(ctx context.Context, t *testing.T, newStore func() *store.Store) {
	f := func(data []byte, mtimeOffsetSeconds int32) bool {
		s := newStore()
		defer s.Close()

		src := func() store.Source { return store.Source{Reader: bytes.NewReader(data)} }
		first, err := s.Add(ctx, src(), store.AddOptions{Preserve: true})
		if err != nil {
			t.Logf("first add: %s", err)
			return false
		}

		differentMTime := first.MTime.Add(time.Duration(mtimeOffsetSeconds) * time.Second)
		second, err := s.Add(ctx, src(), store.AddOptions{Preserve: true, MTime: differentMTime})
		if err != nil {
			t.Logf("second add: %s", err)
			return false
		}
		if second.Fresh {
			t.Log("second add with Preserve and a different mtime reported a change")
			return false
		}
		if !second.MTime.Equal(first.MTime) {
			t.Logf("mtime changed under Preserve: got %s, want %s", second.MTime, first.MTime)
			return false
		}
		p1, _ := first.Digests.Get(s.Config().Primary)
		p2, _ := second.Digests.Get(s.Config().Primary)
		return p1.String() == p2.String()
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 30}); err != nil {
		t.Error(err)
	}
}
