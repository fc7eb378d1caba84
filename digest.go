package store

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"hash"
	"strings"

	"github.com/pkg/errors"
)

// Algorithm identifies one of the digest algorithms this store knows
// how to compute and index.
type Algorithm string

// The digest algorithms understood by this module.
const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha-1"
	SHA256 Algorithm = "sha-256"
	SHA384 Algorithm = "sha-384"
	SHA512 Algorithm = "sha-512"
)

// AllAlgorithms lists every supported algorithm in the canonical order
// used wherever digests of an object are concatenated (the packed
// metadata record, in particular). This order never changes: it is
// part of the on-disk schema.
var AllAlgorithms = []Algorithm{MD5, SHA1, SHA256, SHA384, SHA512}

// Size returns the raw digest length, in bytes, of a.
func (a Algorithm) Size() int {
	switch a {
	case MD5:
		return md5.Size
	case SHA1:
		return sha1.Size
	case SHA256:
		return sha256.Size
	case SHA384:
		return sha512.Size384
	case SHA512:
		return sha512.Size
	default:
		return 0
	}
}

// Valid reports whether a is one of the algorithms this module
// supports.
func (a Algorithm) Valid() bool {
	return a.Size() > 0
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case MD5:
		return md5.New()
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	case SHA384:
		return sha512.New384()
	case SHA512:
		return sha512.New()
	default:
		return nil
	}
}

// Digest pairs an algorithm with the raw digest bytes it produced over
// some blob.
type Digest struct {
	Algorithm Algorithm
	Raw       []byte
}

// IsZero reports whether d is the zero value.
func (d Digest) IsZero() bool {
	return d.Algorithm == "" && d.Raw == nil
}

// String renders d as an RFC6920 "ni:" URI:
// ni:///<algo>;<base64url-no-padding-of-raw-bytes>
func (d Digest) String() string {
	if d.IsZero() {
		return ""
	}
	return "ni:///" + string(d.Algorithm) + ";" + base64.RawURLEncoding.EncodeToString(d.Raw)
}

// ParseDigest parses an RFC6920 "ni:" URI produced by Digest.String.
func ParseDigest(s string) (Digest, error) {
	const prefix = "ni:///"
	if !strings.HasPrefix(s, prefix) {
		return Digest{}, &ArgumentError{Msg: "not an ni: URI: " + s}
	}
	rest := s[len(prefix):]
	algo, enc, ok := strings.Cut(rest, ";")
	if !ok {
		return Digest{}, &ArgumentError{Msg: "malformed ni: URI, missing ';': " + s}
	}
	a := Algorithm(algo)
	if !a.Valid() {
		return Digest{}, &ArgumentError{Msg: "unsupported digest algorithm: " + algo}
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return Digest{}, errors.Wrapf(&ArgumentError{Msg: "malformed ni: URI digest encoding"}, "parsing %s", s)
	}
	if len(raw) != a.Size() {
		return Digest{}, &ArgumentError{Msg: "wrong digest length for " + algo}
	}
	return Digest{Algorithm: a, Raw: raw}, nil
}

// DigestSet is the full complement of digests computed for one object,
// one per configured algorithm.
type DigestSet map[Algorithm]Digest

// Get returns the digest for algorithm a, if present.
func (ds DigestSet) Get(a Algorithm) (Digest, bool) {
	d, ok := ds[a]
	return d, ok
}

// Clone returns a shallow copy of ds.
func (ds DigestSet) Clone() DigestSet {
	if ds == nil {
		return nil
	}
	out := make(DigestSet, len(ds))
	for k, v := range ds {
		out[k] = v
	}
	return out
}
