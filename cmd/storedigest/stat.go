package main

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

func (c maincmd) stat(ctx context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	s, err := c.s.Stats(ctx)
	if err != nil {
		return errors.Wrap(err, "getting stats")
	}

	fmt.Printf("objects: %d\n", s.Objects)
	fmt.Printf("deleted: %d\n", s.Deleted)
	fmt.Printf("bytes:   %d\n", s.Bytes)
	fmt.Printf("ctime:   %s\n", s.CTime)
	fmt.Printf("mtime:   %s\n", s.MTime)

	printBreakdown("types", s.Types)
	printBreakdown("languages", s.Languages)
	printBreakdown("charsets", s.Charsets)
	printBreakdown("encodings", s.Encodings)
	return nil
}

func printBreakdown(label string, m map[string]uint64) {
	if len(m) == 0 {
		return
	}
	fmt.Printf("%s:\n", label)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %d\n", k, m[k])
	}
}
