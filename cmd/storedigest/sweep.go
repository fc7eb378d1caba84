package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

func (c maincmd) sweep(ctx context.Context, fs *flag.FlagSet, args []string) error {
	limit := fs.Int("limit", 0, "maximum number of entries to sweep (0: unbounded)")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, "parsing args")
	}

	swept, err := c.s.Sweep(ctx, time.Now(), *limit)
	if err != nil {
		return errors.Wrap(err, "sweeping")
	}
	fmt.Printf("swept %d entries\n", len(swept))
	return nil
}
