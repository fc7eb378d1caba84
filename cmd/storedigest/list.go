package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	store "github.com/doriantaylor/store-digest"
)

// stringList accumulates repeated occurrences of the same flag, e.g.
// -type text/plain -type text/html.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func (c maincmd) list(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		types     stringList
		charsets  stringList
		encodings stringList
		languages stringList
		minSize   = fs.String("min-size", "", "minimum size, inclusive")
		maxSize   = fs.String("max-size", "", "maximum size, inclusive")
	)
	fs.Var(&types, "type", "content type to match (repeatable)")
	fs.Var(&charsets, "charset", "charset to match (repeatable)")
	fs.Var(&encodings, "encoding", "encoding to match (repeatable)")
	fs.Var(&languages, "language", "language tag to match (repeatable)")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	filter := store.Filter{
		Type:     []string(types),
		Charset:  []string(charsets),
		Encoding: []string(encodings),
		Language: []string(languages),
	}

	if *minSize != "" || *maxSize != "" {
		r := &store.SizeRange{}
		if *minSize != "" {
			n, err := strconv.ParseUint(*minSize, 10, 64)
			if err != nil {
				return errors.Wrap(err, "parsing -min-size")
			}
			r.Lo = &n
		}
		if *maxSize != "" {
			n, err := strconv.ParseUint(*maxSize, 10, 64)
			if err != nil {
				return errors.Wrap(err, "parsing -max-size")
			}
			r.Hi = &n
		}
		filter.Size = r
	}

	objs, err := c.s.List(ctx, filter)
	if err != nil {
		return errors.Wrap(err, "listing objects")
	}

	for _, obj := range objs {
		primary, _ := obj.Digests.Get(c.s.Config().Primary)
		fmt.Printf("%s %d %s\n", primary, obj.Size, obj.Type)
	}
	return nil
}
