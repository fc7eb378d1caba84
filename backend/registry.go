// Package backend composes package blob and package meta into
// concrete store.Driver implementations, selected by name through a
// small factory registry. Grounded on the teacher's store/registry.go
// Register/Create pattern: two factories ship here, "bolt" and
// "logging" (the bolt driver wrapped in the logging decorator), and
// the registry itself is the extension point spec section 6 reserves
// for future backends.
package backend

import (
	"fmt"

	store "github.com/doriantaylor/store-digest"
)

// Factory opens a store.Driver rooted at dir under cfg.
type Factory func(dir string, cfg store.Config) (store.Driver, error)

var registry = make(map[string]Factory)

// Register adds f to the registry under name. Called from each
// factory's own init.
func Register(name string, f Factory) {
	registry[name] = f
}

// Open resolves cfg.Driver (or "bolt" if unset) in the registry and
// opens it at dir.
func Open(dir string, cfg store.Config) (store.Driver, error) {
	name := cfg.Driver
	if name == "" {
		name = "bolt"
	}
	f, ok := registry[name]
	if !ok {
		return nil, &store.ArgumentError{Msg: fmt.Sprintf("no backend registered under %q", name)}
	}
	return f(dir, cfg)
}
