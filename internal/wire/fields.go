package wire

import (
	"slices"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendStrings(b []byte, num protowire.Number, ss []string) []byte {
	for _, s := range ss {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendPayload(b []byte, num protowire.Number, p Payload) []byte {
	return appendBytes(b, num, p.Marshal())
}

// appendTime writes a google.protobuf.Timestamp.
func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	var ts []byte
	ts = appendInt(ts, 1, t.Unix())
	ts = appendInt(ts, 2, int64(t.Nanosecond()))
	return appendBytes(b, num, ts)
}

// appendMap writes map<string,string> entries in key order.
func appendMap(b []byte, num protowire.Number, m map[string]string) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		var entry []byte
		entry = appendString(entry, 1, k)
		entry = appendString(entry, 2, m[k])
		b = appendBytes(b, num, entry)
	}
	return b
}

type field struct {
	typ protowire.Type
	u   uint64
	b   []byte
}

func (f field) str() string { return string(f.b) }
func (f field) int() int64 { return int64(f.u) }
func (f field) bool() bool { return f.u != 0 }

func (f field) time() (time.Time, error) {
	var sec, nsec int64
	err := walk(f.b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			sec = f.int()
		case 2:
			nsec = f.int()
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, nsec).UTC(), nil
}

func (f field) mapEntry() (k, v string, err error) {
	err = walk(f.b, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			k = f.str()
		case 2:
			v = f.str()
		}
		return nil
	})
	return k, v, err
}

// walk calls fn for every field in b. Unknown wire types are skipped.
func walk(b []byte, fn func(num protowire.Number, f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(num, f); err != nil {
			return err
		}
	}
	return nil
}
