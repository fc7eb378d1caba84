package backend

import (
	"log"
	"os"
	"time"

	store "github.com/doriantaylor/store-digest"
)

// loggingDriver delegates every store.Driver method to a nested
// driver, logging each call as it happens. Grounded on the teacher's
// store/logging package, which wraps any anchor.Store the same way.
type loggingDriver struct {
	nested store.Driver
}

// NewLogging wraps nested in a driver that logs every operation via
// the standard library's log package, matching the teacher's choice
// not to pull in a structured-logging dependency for this decorator.
func NewLogging(nested store.Driver) store.Driver {
	return &loggingDriver{nested: nested}
}

func (d *loggingDriver) CreateTemp() (*os.File, error) {
	f, err := d.nested.CreateTemp()
	if err != nil {
		log.Printf("ERROR CreateTemp: %s", err)
	} else {
		log.Printf("CreateTemp %s", f.Name())
	}
	return f, err
}

func (d *loggingDriver) Settle(primary store.Digest, tmp *os.File, mtime time.Time, overwrite bool) error {
	err := d.nested.Settle(primary, tmp, mtime, overwrite)
	if err != nil {
		log.Printf("ERROR Settle %s: %s", primary, err)
	} else {
		log.Printf("Settle %s", primary)
	}
	return err
}

func (d *loggingDriver) Open(primary store.Digest) (store.Opener, bool, error) {
	opener, exists, err := d.nested.Open(primary)
	if err != nil {
		log.Printf("ERROR Open %s: %s", primary, err)
	} else {
		log.Printf("Open %s, exists=%v", primary, exists)
	}
	return opener, exists, err
}

func (d *loggingDriver) Erase(primary store.Digest) (store.ReadCloser, error) {
	rc, err := d.nested.Erase(primary)
	if err != nil {
		log.Printf("ERROR Erase %s: %s", primary, err)
	} else {
		log.Printf("Erase %s", primary)
	}
	return rc, err
}

func (d *loggingDriver) SetMeta(obj store.Object, preserve bool) (store.Object, uint64, bool, error) {
	merged, id, changed, err := d.nested.SetMeta(obj, preserve)
	if err != nil {
		log.Printf("ERROR SetMeta: %s", err)
	} else {
		log.Printf("SetMeta entry=%d changed=%v", id, changed)
	}
	return merged, id, changed, err
}

func (d *loggingDriver) GetMeta(dg store.Digest) (store.Object, uint64, bool, error) {
	obj, id, found, err := d.nested.GetMeta(dg)
	if err != nil {
		log.Printf("ERROR GetMeta %s: %s", dg, err)
	} else {
		log.Printf("GetMeta %s, found=%v", dg, found)
	}
	return obj, id, found, err
}

func (d *loggingDriver) MarkDeleted(dg store.Digest, now time.Time) (store.Object, bool, error) {
	obj, found, err := d.nested.MarkDeleted(dg, now)
	if err != nil {
		log.Printf("ERROR MarkDeleted %s: %s", dg, err)
	} else {
		log.Printf("MarkDeleted %s, found=%v", dg, found)
	}
	return obj, found, err
}

func (d *loggingDriver) RemoveMeta(dg store.Digest) (store.Object, bool, error) {
	obj, found, err := d.nested.RemoveMeta(dg)
	if err != nil {
		log.Printf("ERROR RemoveMeta %s: %s", dg, err)
	} else {
		log.Printf("RemoveMeta %s, found=%v", dg, found)
	}
	return obj, found, err
}

func (d *loggingDriver) Stats() (store.Stats, error) {
	s, err := d.nested.Stats()
	if err != nil {
		log.Printf("ERROR Stats: %s", err)
	} else {
		log.Printf("Stats objects=%d deleted=%d bytes=%d", s.Objects, s.Deleted, s.Bytes)
	}
	return s, err
}

func (d *loggingDriver) List(filter store.Filter) ([]store.Object, error) {
	objs, err := d.nested.List(filter)
	if err != nil {
		log.Printf("ERROR List: %s", err)
	} else {
		log.Printf("List -> %d objects", len(objs))
	}
	return objs, err
}

func (d *loggingDriver) Sweep(now time.Time, limit int) ([]store.Object, error) {
	objs, err := d.nested.Sweep(now, limit)
	if err != nil {
		log.Printf("ERROR Sweep: %s", err)
	} else {
		log.Printf("Sweep -> %d objects", len(objs))
	}
	return objs, err
}

func (d *loggingDriver) Close() error {
	err := d.nested.Close()
	if err != nil {
		log.Printf("ERROR Close: %s", err)
	} else {
		log.Printf("Close")
	}
	return err
}

func init() {
	Register("logging", func(dir string, cfg store.Config) (store.Driver, error) {
		nested, err := openBolt(dir, cfg)
		if err != nil {
			return nil, err
		}
		return NewLogging(nested), nil
	})
}
