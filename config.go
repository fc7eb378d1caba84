package store

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Config configures a store at open time.
type Config struct {
	// Dir is the store's root directory. Required.
	Dir string

	// Driver selects the concrete backend. Reserved for extension;
	// package backend presently registers "bolt" and "logging" (bolt
	// wrapped in a logging decorator).
	// Empty means the backend's default.
	Driver string

	// Algorithms is the set of digest algorithms the store computes
	// and indexes. Defaults to every algorithm this module supports.
	Algorithms []Algorithm

	// Primary is the algorithm used to key the blob filesystem. Must
	// be a member of Algorithms. Defaults to SHA256.
	Primary Algorithm

	// MapSize is the metadata engine's initial memory-map size, in
	// bytes. Zero means the backend's default.
	MapSize int64

	// Umask masks the mode bits of directories and files the store
	// creates. Negative means "capture the process umask at setup":
	// the backend does so when it opens the store. DefaultConfig sets
	// it to -1.
	Umask int
}

// DefaultConfig returns a Config with every optional field at its
// documented default. Dir must still be set.
func DefaultConfig() Config {
	return Config{
		Algorithms: append([]Algorithm(nil), AllAlgorithms...),
		Primary:    SHA256,
		Umask:      -1,
	}
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithAlgorithms overrides the default algorithm set.
func WithAlgorithms(algos ...Algorithm) Option {
	return func(c *Config) { c.Algorithms = algos }
}

// WithPrimary overrides the default primary algorithm.
func WithPrimary(a Algorithm) Option {
	return func(c *Config) { c.Primary = a }
}

// WithMapSize sets the metadata engine's memory-map size, in bytes.
func WithMapSize(size int64) Option {
	return func(c *Config) { c.MapSize = size }
}

// WithUmask overrides the captured-at-setup umask.
func WithUmask(u int) Option {
	return func(c *Config) { c.Umask = u }
}

// WithDriver selects a non-default backend by registry name.
func WithDriver(name string) Option {
	return func(c *Config) { c.Driver = name }
}

// NewConfig builds a Config for dir with opts applied over the
// defaults, and validates it.
func NewConfig(dir string, opts ...Option) (Config, error) {
	c := DefaultConfig()
	c.Dir = dir
	for _, opt := range opts {
		opt(&c)
	}
	return c, c.Validate()
}

// Validate checks that c is internally consistent: Dir is set, every
// configured algorithm is supported, no algorithm appears twice, and
// Primary is among Algorithms.
func (c Config) Validate() error {
	if c.Dir == "" {
		return &ArgumentError{Msg: `missing "dir"`}
	}
	if len(c.Algorithms) == 0 {
		return &ArgumentError{Msg: "no algorithms configured"}
	}
	seen := make(map[Algorithm]bool, len(c.Algorithms))
	for _, a := range c.Algorithms {
		if !a.Valid() {
			return &ArgumentError{Msg: "unsupported algorithm: " + string(a)}
		}
		if seen[a] {
			return &ArgumentError{Msg: "duplicate algorithm: " + string(a)}
		}
		seen[a] = true
	}
	if c.Primary == "" {
		return &ArgumentError{Msg: "missing primary algorithm"}
	}
	if !seen[c.Primary] {
		return &ArgumentError{Msg: "primary algorithm " + string(c.Primary) + " not in algorithms"}
	}
	return nil
}

// OrderedAlgorithms returns c.Algorithms filtered to AllAlgorithms'
// canonical order -- the order in which digests are concatenated in a
// packed metadata record.
func (c Config) OrderedAlgorithms() []Algorithm {
	have := make(map[Algorithm]bool, len(c.Algorithms))
	for _, a := range c.Algorithms {
		have[a] = true
	}
	out := make([]Algorithm, 0, len(c.Algorithms))
	for _, a := range AllAlgorithms {
		if have[a] {
			out = append(out, a)
		}
	}
	return out
}

// ParseMapSize parses a decimal integer with an optional unit suffix
// from the set [kmgtpeKMGTPE]: lowercase multiplies by powers of 1000,
// uppercase by powers of 1024.
func ParseMapSize(s string) (int64, error) {
	if s == "" {
		return 0, &ArgumentError{Msg: "empty mapsize"}
	}
	suffix := s[len(s)-1]
	mult := int64(1)
	digits := s
	switch suffix {
	case 'k':
		mult = 1000
	case 'K':
		mult = 1024
	case 'm':
		mult = 1000 * 1000
	case 'M':
		mult = 1024 * 1024
	case 'g':
		mult = 1000 * 1000 * 1000
	case 'G':
		mult = 1024 * 1024 * 1024
	case 't':
		mult = 1000 * 1000 * 1000 * 1000
	case 'T':
		mult = 1024 * 1024 * 1024 * 1024
	case 'p':
		mult = 1000 * 1000 * 1000 * 1000 * 1000
	case 'P':
		mult = 1024 * 1024 * 1024 * 1024 * 1024
	case 'e':
		mult = 1000 * 1000 * 1000 * 1000 * 1000 * 1000
	case 'E':
		mult = 1024 * 1024 * 1024 * 1024 * 1024 * 1024
	default:
		digits = s
	}
	if mult != 1 {
		digits = strings.TrimSuffix(s, string(suffix))
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(&ArgumentError{Msg: "malformed mapsize"}, "parsing %q", s)
	}
	if n < 0 {
		return 0, &ArgumentError{Msg: "negative mapsize"}
	}
	return n * mult, nil
}
