package meta

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	store "github.com/doriantaylor/store-digest"
)

// Bucket names. "control", "entries", and one bucket per algorithm's
// digest table and per secondary index live at the top level of the
// bbolt database; each secondary-index bucket is itself a bucket of
// buckets (see index.go).
var (
	bucketControl = []byte("control")
	bucketEntries = []byte("entries")
)

func digestBucketName(a store.Algorithm) []byte { return []byte("digest:" + string(a)) }

const (
	idxSize     = "idx:size"
	idxCTime    = "idx:ctime"
	idxMTime    = "idx:mtime"
	idxPTime    = "idx:ptime"
	idxDTime    = "idx:dtime"
	idxETime    = "idx:etime"
	idxType     = "idx:type"
	idxLanguage = "idx:language"
	idxCharset  = "idx:charset"
	idxEncoding = "idx:encoding"
)

// Control table keys.
const (
	ctlVersion    = "version"
	ctlCTime      = "ctime"
	ctlMTime      = "mtime"
	ctlExpiry     = "expiry"
	ctlObjects    = "objects"
	ctlDeleted    = "deleted"
	ctlBytes      = "bytes"
	ctlAlgorithms = "algorithms"
	ctlPrimary    = "primary"
)

// schemaVersion identifies which on-disk layout a store uses.
type schemaVersion int

const (
	schemaV0 schemaVersion = iota // legacy: entry keyed directly by primary digest, no entry-id, no secondary indexes
	schemaV1
)

const defaultExpirySeconds = 86400

// encodeID renders an entry-id as the native-endian, fixed-width key
// the entry table and every index use. "Native-endian" in the spec's
// Ruby-and-C original means "whatever this host's CPU prefers"; we
// fix it to big-endian so index keys sort the same as the integers
// they represent, which bbolt's dupsort-emulating cursors (see
// index.go) rely on.
func encodeID(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

func decodeID(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// encodeUint64 and encodeTime both produce 8-byte big-endian sort keys
// for the range-queryable indexes. Timestamps are encoded as
// microseconds since the Unix epoch; this module always uses 64-bit
// integers regardless of host word size; the spec's "32-bit hosts get
// second resolution" carve-out is a C/Ruby concern about native word
// size that doesn't exist in Go, where int64 is int64 on every
// platform.
func encodeUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// encodeTime maps a time.Time to a sortable uint64 key: microseconds
// since epoch, biased so that any representable instant sorts
// correctly as an unsigned integer. The zero Time encodes to 0, which
// schema.go's decode treats as "none" wherever a timestamp is
// optional.
func encodeTime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	usec := t.UnixMicro()
	// Bias by half the uint64 range so negative (pre-epoch) values
	// still sort before positive ones as unsigned integers.
	return uint64(usec) ^ (uint64(1) << 63)
}

func decodeTime(v uint64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	usec := int64(v ^ (uint64(1) << 63))
	return time.UnixMicro(usec).UTC()
}

func encodeTimeKey(t time.Time) []byte { return encodeUint64(encodeTime(t)) }

// packedRecord is the fixed-order encoding of one entry: the
// configured digests (canonical order), then size, ctime, mtime,
// ptime, dtime, flags, then the four NUL-terminated token fields.
func packRecord(obj store.Object, algos []store.Algorithm) []byte {
	var buf bytes.Buffer
	for _, a := range algos {
		d, ok := obj.Digests.Get(a)
		raw := d.Raw
		if !ok || len(raw) != a.Size() {
			raw = make([]byte, a.Size())
		}
		buf.Write(raw)
	}

	var word [8]byte
	binary.BigEndian.PutUint64(word[:], obj.Size)
	buf.Write(word[:])

	writeTime := func(t time.Time) {
		var usec int64
		if !t.IsZero() {
			usec = t.UnixMicro()
		}
		binary.BigEndian.PutUint64(word[:], uint64(usec))
		buf.Write(word[:])
	}
	writeTime(obj.CTime)
	writeTime(obj.MTime)
	writeTime(obj.PTime)
	if obj.DTime != nil {
		writeTime(*obj.DTime)
	} else {
		writeTime(time.Time{})
	}

	var flagsBuf [2]byte
	binary.BigEndian.PutUint16(flagsBuf[:], uint16(obj.Flags))
	buf.Write(flagsBuf[:])

	buf.WriteString(obj.Type)
	buf.WriteByte(0)
	buf.WriteString(obj.Language)
	buf.WriteByte(0)
	buf.WriteString(obj.Charset)
	buf.WriteByte(0)
	buf.WriteString(obj.Encoding)
	buf.WriteByte(0)

	return buf.Bytes()
}

// unpackRecord is packRecord's inverse.
func unpackRecord(data []byte, algos []store.Algorithm) (store.Object, error) {
	var obj store.Object
	obj.Digests = make(store.DigestSet, len(algos))

	off := 0
	for _, a := range algos {
		n := a.Size()
		if off+n > len(data) {
			return store.Object{}, &store.CorruptStateError{Msg: "packed record too short for digest " + string(a)}
		}
		raw := append([]byte(nil), data[off:off+n]...)
		off += n
		obj.Digests[a] = store.Digest{Algorithm: a, Raw: raw}
	}

	need := off + 8 + 8*4 + 2
	if len(data) < need {
		return store.Object{}, &store.CorruptStateError{Msg: "packed record truncated"}
	}

	obj.Size = binary.BigEndian.Uint64(data[off : off+8])
	off += 8

	readTime := func() time.Time {
		usec := int64(binary.BigEndian.Uint64(data[off : off+8]))
		off += 8
		if usec == 0 {
			return time.Time{}
		}
		return time.UnixMicro(usec).UTC()
	}
	obj.CTime = readTime()
	obj.MTime = readTime()
	obj.PTime = readTime()
	dtime := readTime()
	if !dtime.IsZero() {
		t := dtime
		obj.DTime = &t
	}

	obj.Flags = store.Flags(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2

	rest := data[off:]
	fields := make([]string, 4)
	for i := 0; i < 4; i++ {
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return store.Object{}, &store.CorruptStateError{Msg: "packed record missing NUL terminator"}
		}
		fields[i] = string(rest[:nul])
		rest = rest[nul+1:]
	}
	obj.Type, obj.Language, obj.Charset, obj.Encoding = fields[0], fields[1], fields[2], fields[3]

	return obj, nil
}

func parseAlgorithmList(s string) []store.Algorithm {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]store.Algorithm, 0, len(parts))
	for _, p := range parts {
		out = append(out, store.Algorithm(p))
	}
	return out
}

func formatAlgorithmList(algos []store.Algorithm) string {
	parts := make([]string, len(algos))
	for i, a := range algos {
		parts[i] = string(a)
	}
	return strings.Join(parts, ",")
}

func parseUint64(b []byte) uint64 {
	v, _ := strconv.ParseUint(string(b), 10, 64)
	return v
}

func formatUint64(v uint64) []byte {
	return []byte(strconv.FormatUint(v, 10))
}
