package store

import (
	"context"
	"hash"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// sampleSize is the minimum number of leading bytes retained for MIME
// sniffing. 8192 is large enough for OOXML container detection, which
// needs to see past the zip local-file-header of the first entry.
const sampleSize = 8192

// Source is the byte source Store.Add scans. Coercing a file path, a
// byte string, or an arbitrary stream into a Source is the job of the
// thin dispatch front-end this module treats as an out-of-scope
// collaborator (spec section 1); Source is the minimal shape that
// collaborator is expected to produce.
type Source struct {
	Reader io.Reader

	// Filename, if set, is used for extension-based MIME refinement.
	Filename string

	// MTime, if set, is the default Object.MTime when the caller does
	// not supply one explicitly via AddOptions.
	MTime time.Time
}

// scanResult is what Scan computes from a Source in one streaming
// pass.
type scanResult struct {
	Digests     DigestSet
	Size        uint64
	SourceMTime time.Time
	Type        string
	Charset     string
	Language    string
	Encoding    string
}

// sniffFunc detects a media type from a content sample. The default,
// wired by Store, is net/http.DetectContentType; it is swappable
// because MIME sniffing is explicitly treated as an external oracle by
// the spec this module implements, not a subsystem to perfect here.
type sniffFunc func(sample []byte) string

func defaultSniff(sample []byte) string {
	return http.DetectContentType(sample)
}

// Scan streams src through every algorithm in algos and through w in a
// single pass, accumulating a sample for MIME detection and a running
// size tally. After EOF it resolves the object's type according to the
// spec's refinement rule and normalizes every user-supplied token.
func Scan(ctx context.Context, src Source, w io.Writer, algos []Algorithm, opts AddOptions, sniff sniffFunc) (scanResult, error) {
	if src.Reader == nil {
		return scanResult{}, &ArgumentError{Msg: "nil source reader"}
	}
	if sniff == nil {
		sniff = defaultSniff
	}

	hashes := make(map[Algorithm]hash.Hash, len(algos))
	writers := make([]io.Writer, 0, len(algos)+1)
	for _, a := range algos {
		h := a.newHash()
		if h == nil {
			return scanResult{}, &ArgumentError{Msg: "unsupported algorithm: " + string(a)}
		}
		hashes[a] = h
		writers = append(writers, h)
	}
	writers = append(writers, w)

	var (
		sample = make([]byte, 0, sampleSize)
		size   uint64
		buf    [32 * 1024]byte
	)
	mw := io.MultiWriter(writers...)
	for {
		if err := ctx.Err(); err != nil {
			return scanResult{}, err
		}
		n, rerr := src.Reader.Read(buf[:])
		if n > 0 {
			if _, err := mw.Write(buf[:n]); err != nil {
				return scanResult{}, err
			}
			size += uint64(n)
			if len(sample) < sampleSize {
				need := sampleSize - len(sample)
				if need > n {
					need = n
				}
				sample = append(sample, buf[:need]...)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return scanResult{}, rerr
		}
	}

	digests := make(DigestSet, len(hashes))
	for a, h := range hashes {
		digests[a] = Digest{Algorithm: a, Raw: h.Sum(nil)}
	}

	typ, err := resolveType(sample, src.Filename, opts.Type, sniff, opts.Strict)
	if err != nil {
		return scanResult{}, err
	}

	charset, err := normalizeCharset(opts.Charset, opts.Strict)
	if err != nil {
		return scanResult{}, err
	}
	lang, err := normalizeLanguage(opts.Language, opts.Strict)
	if err != nil {
		return scanResult{}, err
	}
	enc, err := normalizeEncoding(opts.Encoding, opts.Strict)
	if err != nil {
		return scanResult{}, err
	}

	return scanResult{
		Digests:     digests,
		Size:        size,
		SourceMTime: src.MTime,
		Type:        typ,
		Charset:     charset,
		Language:    lang,
		Encoding:    enc,
	}, nil
}

// refines reports whether a is a more specific media type than b, the
// only relation the spec's type-resolution rule needs. The default
// "application/octet-stream" is refined by anything; a text/* type
// refines the generic "text/plain"; anything refines itself.
func refines(a, b string) bool {
	if a == b {
		return true
	}
	if b == "application/octet-stream" || b == "" {
		return true
	}
	if b == "text/plain" && strings.HasPrefix(a, "text/") {
		return true
	}
	return false
}

func resolveType(sample []byte, filename, supplied string, sniff sniffFunc, strict bool) (string, error) {
	detected := stripParams(sniff(sample))

	if filename != "" {
		if guessed := mime.TypeByExtension(filepath.Ext(filename)); guessed != "" {
			guessed = stripParams(guessed)
			if refines(guessed, detected) {
				detected = guessed
			}
		}
	}

	supplied, err := normalizeToken(supplied, strict)
	if err != nil {
		return "", err
	}
	if supplied == "" {
		return detected, nil
	}
	if refines(detected, supplied) {
		return detected, nil
	}
	return supplied, nil
}

func stripParams(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

// normalizeToken implements the spec's generic token normalization:
// strip, lowercase, and apply the small set of known aliases. The
// token is not checked against any grammar, so strict has no effect
// here and no token is rejected or dropped.
func normalizeToken(s string, strict bool) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "x-gzip":
		s = "gzip"
	case "x-compress":
		s = "compress"
	case "utf8":
		s = "utf-8"
	}
	return s, nil
}

func normalizeCharset(s string, strict bool) (string, error) {
	return normalizeToken(s, strict)
}

func normalizeEncoding(s string, strict bool) (string, error) {
	return normalizeToken(s, strict)
}

// normalizeLanguage implements the spec's RFC5646 normalization:
// underscores become hyphens, trailing separators are trimmed, and the
// result is validated against golang.org/x/text/language's BCP 47
// grammar. A grammar failure is an ArgumentError in strict mode and a
// silent drop otherwise.
func normalizeLanguage(s string, strict bool) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.TrimRight(s, "-")
	s = strings.ToLower(s)
	if s == "" {
		return "", nil
	}
	if _, err := language.Parse(s); err != nil {
		if strict {
			return "", &ArgumentError{Msg: "invalid language tag: " + s}
		}
		return "", nil
	}
	return s, nil
}
