package main

import (
	"context"
	"flag"
	"os"

	"github.com/pkg/errors"

	store "github.com/doriantaylor/store-digest"
)

func (c maincmd) add(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		typ      = fs.String("type", "", "content type, if known")
		charset  = fs.String("charset", "", "charset, if known")
		language = fs.String("language", "", "language tag, if known")
		encoding = fs.String("encoding", "", "content encoding, if known")
		strict   = fs.Bool("strict", false, "reject a malformed language tag instead of dropping it (type, charset and encoding are normalized but not validated)")
	)
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	rest := fs.Args()
	var (
		reader = os.Stdin
		name   string
	)
	if len(rest) > 0 {
		f, err := os.Open(rest[0])
		if err != nil {
			return errors.Wrapf(err, "opening %s", rest[0])
		}
		defer f.Close()
		reader = f
		name = rest[0]
	}

	src := store.Source{Reader: reader, Filename: name}
	opts := store.AddOptions{
		Type:     *typ,
		Charset:  *charset,
		Language: *language,
		Encoding: *encoding,
		Strict:   *strict,
	}

	obj, err := c.s.Add(ctx, src, opts)
	if err != nil {
		return errors.Wrap(err, "adding object")
	}

	primary, _ := obj.Digests.Get(c.s.Config().Primary)
	printObject(primary, *obj)
	return nil
}
