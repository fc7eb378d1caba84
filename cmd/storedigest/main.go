// Command storedigest is a general-purpose CLI interface to a
// content-addressable blob store.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/bobg/subcmd"

	store "github.com/doriantaylor/store-digest"
	"github.com/doriantaylor/store-digest/backend"
)

type maincmd struct {
	s *store.Store
}

func main() {
	var (
		dir     = flag.String("dir", "", "store root directory")
		driver  = flag.String("driver", "", "backend driver name (default: bolt)")
		mapsz   = flag.String("mapsize", "", "metadata engine memory-map size")
		verbose = flag.Bool("verbose", false, "log every store operation")
	)
	flag.Parse()

	if *dir == "" {
		log.Fatal("-dir is required")
	}

	var opts []store.Option
	if *driver != "" {
		opts = append(opts, store.WithDriver(*driver))
	}
	if *mapsz != "" {
		n, err := store.ParseMapSize(*mapsz)
		if err != nil {
			log.Fatalf("parsing -mapsize: %s", err)
		}
		opts = append(opts, store.WithMapSize(n))
	}

	cfg, err := store.NewConfig(*dir, opts...)
	if err != nil {
		log.Fatalf("building config: %s", err)
	}

	drv, err := backend.Open(*dir, cfg)
	if err != nil {
		log.Fatalf("opening store at %s: %s", *dir, err)
	}
	if *verbose {
		drv = backend.NewLogging(drv)
	}

	s, err := store.New(drv, cfg)
	if err != nil {
		log.Fatalf("initializing store: %s", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := subcmd.Run(ctx, maincmd{s: s}, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"add":    {F: c.add},
		"get":    {F: c.get},
		"remove": {F: c.remove},
		"forget": {F: c.forget},
		"stat":   {F: c.stat},
		"list":   {F: c.list},
		"sweep":  {F: c.sweep},
	}
}
