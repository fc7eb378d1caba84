package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"

	store "github.com/doriantaylor/store-digest"
)

func (c maincmd) remove(ctx context.Context, fs *flag.FlagSet, args []string) error {
	return c.doRemove(ctx, fs, args, false)
}

func (c maincmd) forget(ctx context.Context, fs *flag.FlagSet, args []string) error {
	return c.doRemove(ctx, fs, args, true)
}

func (c maincmd) doRemove(ctx context.Context, fs *flag.FlagSet, args []string, forget bool) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return errors.New("usage: remove <ni-uri>")
	}
	d, err := store.ParseDigest(rest[0])
	if err != nil {
		return errors.Wrapf(err, "parsing %s", rest[0])
	}

	obj, err := c.s.Remove(ctx, d, forget)
	if err != nil {
		return errors.Wrap(err, "removing object")
	}
	if obj == nil {
		return errors.Errorf("not found: %s", rest[0])
	}
	fmt.Printf("removed %s\n", rest[0])
	return nil
}
