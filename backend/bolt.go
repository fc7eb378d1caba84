package backend

import (
	"os"
	"path/filepath"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	store "github.com/doriantaylor/store-digest"
	"github.com/doriantaylor/store-digest/blob"
	"github.com/doriantaylor/store-digest/meta"
)

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return &store.IOError{Op: "creating store directory " + dir, Err: err}
	}
	return nil
}

const metaFileName = "meta.db"
const genesisLockName = "genesis.lock"

// boltDriver composes package blob's filesystem store with package
// meta's bbolt-backed engine into one store.Driver. It embeds both
// concrete types rather than re-declaring their methods: neither
// blob.Store nor meta.DB names a method the other does, so the
// embedding alone satisfies store.Driver.
type boltDriver struct {
	*blob.Store
	*meta.DB
}

var flocker flock.Locker

// openBolt opens (creating if necessary) a "bolt" driver rooted at
// dir. dir itself is created first; setting up its contents (the blob
// directories and the metadata database) is then guarded by an
// flock-based lock on a file inside dir, the same mechanism the
// teacher's store/file package uses to serialize access to its
// anchor-map-ref file, so that two processes racing to initialize a
// fresh store don't both set it up at once.
func openBolt(dir string, cfg store.Config) (store.Driver, error) {
	lockPath := filepath.Join(dir, genesisLockName)
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	if err := flocker.Lock(lockPath); err != nil {
		return nil, errors.Wrap(err, "locking store genesis")
	}
	defer flocker.Unlock(lockPath)

	umask := cfg.Umask
	if umask < 0 {
		umask = blob.CaptureUmask()
	}

	blobStore, err := blob.New(dir, umask)
	if err != nil {
		return nil, errors.Wrap(err, "opening blob store")
	}

	metaDB, err := meta.Open(filepath.Join(dir, metaFileName), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "opening metadata database")
	}

	return &boltDriver{Store: blobStore, DB: metaDB}, nil
}

func init() {
	Register("bolt", openBolt)
}
