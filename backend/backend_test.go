package backend_test

import (
	"context"
	"os"
	"testing"

	store "github.com/doriantaylor/store-digest"
	"github.com/doriantaylor/store-digest/backend"
	"github.com/doriantaylor/store-digest/testutil"
)

func newStoreFactory(t *testing.T) func() *store.Store {
	return func() *store.Store {
		dir, err := os.MkdirTemp("", "storedigest-conformance")
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
		return s
	}
}

func TestBoltDriverRoundTrip(t *testing.T) {
	testutil.RoundTrip(context.Background(), t, newStoreFactory(t))
}

func TestBoltDriverIdempotence(t *testing.T) {
	testutil.Idempotence(context.Background(), t, newStoreFactory(t))
}
