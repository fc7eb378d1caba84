package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/pkg/errors"

	store "github.com/doriantaylor/store-digest"
)

func (c maincmd) get(ctx context.Context, fs *flag.FlagSet, args []string) error {
	direct := fs.Bool("direct", false, "open the blob immediately instead of lazily")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	rest := fs.Args()
	if len(rest) != 1 {
		return errors.New("usage: get [-direct] <ni-uri>")
	}

	d, err := store.ParseDigest(rest[0])
	if err != nil {
		return errors.Wrapf(err, "parsing %s", rest[0])
	}

	obj, err := c.s.Get(ctx, d, *direct)
	if err != nil {
		return errors.Wrap(err, "getting object")
	}
	if obj == nil {
		return errors.Errorf("not found: %s", rest[0])
	}
	if obj.Open == nil {
		return errors.Errorf("%s is a tombstone, no blob available", rest[0])
	}

	rc, err := obj.Open()
	if err != nil {
		return errors.Wrap(err, "opening blob")
	}
	defer rc.Close()

	_, err = io.Copy(os.Stdout, rc)
	return errors.Wrap(err, "writing blob to stdout")
}
