package store_test

import (
	"bytes"
	"context"
	"os"
	"testing"

	store "github.com/doriantaylor/store-digest"
	"github.com/doriantaylor/store-digest/backend"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "storedigest")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg, err := store.NewConfig(dir)
	if err != nil {
		t.Fatal(err)
	}
	drv, err := backend.Open(dir, cfg)
	if err != nil {
		t.Fatal(err)
	}
	s, err := store.New(drv, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	obj, err := s.Add(ctx, store.Source{Reader: bytes.NewReader([]byte("some data"))}, store.AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !obj.Fresh {
		t.Fatal("expected fresh on first add")
	}
	if obj.Size != 9 {
		t.Errorf("size = %d, want 9", obj.Size)
	}
	primary, ok := obj.Digests.Get(s.Config().Primary)
	if !ok {
		t.Fatal("missing primary digest")
	}

	got, err := s.Get(ctx, primary, false)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected to find the object")
	}
	if got.Open == nil {
		t.Fatal("expected an open handle on a live object")
	}
	rc, err := got.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	buf := make([]byte, 16)
	n, _ := rc.Read(buf)
	if string(buf[:n]) != "some data" {
		t.Errorf("read %q, want %q", buf[:n], "some data")
	}
}

func TestAddIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	src := func() store.Source { return store.Source{Reader: bytes.NewReader([]byte("idempotent"))} }

	first, err := s.Add(ctx, src(), store.AddOptions{Preserve: true})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Add(ctx, src(), store.AddOptions{Preserve: true})
	if err != nil {
		t.Fatal(err)
	}
	if second.Fresh {
		t.Error("expected second identical add with Preserve to report no change")
	}

	p1, _ := first.Digests.Get(s.Config().Primary)
	p2, _ := second.Digests.Get(s.Config().Primary)
	if p1.String() != p2.String() {
		t.Error("expected the same primary digest across idempotent adds")
	}
}

func TestRemoveThenResurrect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.Add(ctx, store.Source{Reader: bytes.NewReader([]byte("a"))}, store.AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, store.Source{Reader: bytes.NewReader([]byte("b"))}, store.AddOptions{}); err != nil {
		t.Fatal(err)
	}

	primary, _ := added.Digests.Get(s.Config().Primary)
	removed, err := s.Remove(ctx, primary, false)
	if err != nil {
		t.Fatal(err)
	}
	if removed == nil {
		t.Fatal("expected to remove the object")
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Objects != 1 || stats.Deleted != 1 {
		t.Fatalf("stats = %+v, want objects=1 deleted=1", stats)
	}

	tombstoned, err := s.Get(ctx, primary, false)
	if err != nil {
		t.Fatal(err)
	}
	if tombstoned == nil || tombstoned.Open != nil {
		t.Fatal("expected a tombstone record with no open blob handle")
	}

	resurrected, err := s.Add(ctx, store.Source{Reader: bytes.NewReader([]byte("a"))}, store.AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !resurrected.Fresh {
		t.Error("expected resurrection to report a change")
	}
	if resurrected.Open == nil {
		t.Error("expected a readable blob after resurrection")
	}

	stats, err = s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Objects != 2 || stats.Deleted != 0 {
		t.Fatalf("stats after resurrection = %+v, want objects=2 deleted=0", stats)
	}
}

func TestForgetPurges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.Add(ctx, store.Source{Reader: bytes.NewReader([]byte("forget me"))}, store.AddOptions{})
	if err != nil {
		t.Fatal(err)
	}
	primary, _ := added.Digests.Get(s.Config().Primary)

	if _, err := s.Forget(ctx, primary); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, primary, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected forgotten object to be entirely gone")
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Objects != 0 || stats.Deleted != 0 {
		t.Fatalf("stats after forget = %+v, want all zero", stats)
	}
}

func TestListByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, store.Source{Reader: bytes.NewReader([]byte("{}"))}, store.AddOptions{Type: "application/json"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, store.Source{Reader: bytes.NewReader([]byte("plain"))}, store.AddOptions{Type: "text/plain"}); err != nil {
		t.Fatal(err)
	}

	objs, err := s.List(ctx, store.Filter{Type: []string{"application/json"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 1 || objs[0].Type != "application/json" {
		t.Fatalf("List = %+v, want one application/json record", objs)
	}
}
