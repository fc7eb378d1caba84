package blob

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	store "github.com/doriantaylor/store-digest"
)

func mustDigest(t *testing.T, raw string) store.Digest {
	t.Helper()
	b := make([]byte, store.SHA256.Size())
	copy(b, raw)
	return store.Digest{Algorithm: store.SHA256, Raw: b}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "blobstore")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := New(dir, 0022)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSettleAndOpen(t *testing.T) {
	s := newTestStore(t)
	d := mustDigest(t, "hello world")

	tmp, err := s.CreateTemp()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmp.WriteString("hello world"); err != nil {
		t.Fatal(err)
	}

	mtime := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := s.Settle(d, tmp, mtime, true); err != nil {
		t.Fatal(err)
	}

	opener, exists, err := s.Open(d)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("expected blob to exist after settle")
	}

	rc, err := opener()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q, want %q", got, "hello world")
	}

	fi, err := os.Stat(s.blobPath(d))
	if err != nil {
		t.Fatal(err)
	}
	if !fi.ModTime().Equal(mtime) {
		t.Fatalf("mtime = %s, want %s", fi.ModTime(), mtime)
	}
}

func TestSettleNoOverwrite(t *testing.T) {
	s := newTestStore(t)
	d := mustDigest(t, "first")

	tmp1, err := s.CreateTemp()
	if err != nil {
		t.Fatal(err)
	}
	tmp1.WriteString("first")
	if err := s.Settle(d, tmp1, time.Time{}, true); err != nil {
		t.Fatal(err)
	}

	target := s.blobPath(d)
	before, err := os.Stat(target)
	if err != nil {
		t.Fatal(err)
	}

	tmp2, err := s.CreateTemp()
	if err != nil {
		t.Fatal(err)
	}
	tmp2.WriteString("second")
	mtime := time.Now().Add(time.Hour)
	if err := s.Settle(d, tmp2, mtime, false); err != nil {
		t.Fatal(err)
	}

	after, err := os.Stat(target)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatalf("settle with overwrite=false touched existing file: before=%s after=%s", before.ModTime(), after.ModTime())
	}

	if _, err := os.Stat(tmp2.Name()); !os.IsNotExist(err) {
		t.Fatalf("expected discarded temp file %s to be gone", tmp2.Name())
	}
}

func TestOpenMissing(t *testing.T) {
	s := newTestStore(t)
	d := mustDigest(t, "never written")

	_, exists, err := s.Open(d)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("expected no blob to exist")
	}
}

func TestEraseAndPrune(t *testing.T) {
	s := newTestStore(t)
	d := mustDigest(t, "erase me")

	tmp, err := s.CreateTemp()
	if err != nil {
		t.Fatal(err)
	}
	tmp.WriteString("erase me")
	if err := s.Settle(d, tmp, time.Time{}, true); err != nil {
		t.Fatal(err)
	}

	target := s.blobPath(d)
	rc, err := s.Erase(d)
	if err != nil {
		t.Fatal(err)
	}
	if rc == nil {
		t.Fatal("expected a still-open handle on the erased blob")
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "erase me" {
		t.Fatalf("got %q from unlinked handle, want %q", got, "erase me")
	}

	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be unlinked", target)
	}

	// The hashed parent directories should have been pruned away, since
	// this was the only blob under them.
	top := filepath.Dir(filepath.Dir(filepath.Dir(target)))
	if _, err := os.Stat(top); !os.IsNotExist(err) {
		t.Fatalf("expected ancestor directory %s to be pruned", top)
	}

	rc2, err := s.Erase(d)
	if err != nil {
		t.Fatal(err)
	}
	if rc2 != nil {
		t.Fatal("expected second erase of already-erased blob to be a no-op")
	}
}

func TestSplitSegments(t *testing.T) {
	cases := []struct {
		enc  string
		want int
	}{
		{"abcd", 1},
		{"abcdefgh", 2},
		{"abcdefghijkl", 3},
		{"abcdefghijklmnop", 4},
	}
	for _, c := range cases {
		segs := splitSegments(c.enc)
		if len(segs) != c.want {
			t.Errorf("splitSegments(%q) = %v, want %d segments", c.enc, segs, c.want)
		}
	}

	segs := splitSegments("abcdefghijklmnop")
	if segs[0] != "abcd" || segs[1] != "efgh" || segs[2] != "ijkl" || segs[3] != "mnop" {
		t.Fatalf("splitSegments produced unexpected segments: %v", segs)
	}
}
