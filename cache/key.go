package cache

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Key builds a cache key from a base name and optional parameters. Scalar
// parameters are rendered verbatim and joined with "-", so Key("user", 1) is
// "user-1" and substring invalidation on "user" reaches it. Anything else is
// encoded with msgpack (map keys sorted) and reduced to a 16 digit xxhash, so
// logically identical parameters always produce the same key.
func Key(base string, params ...any) string {
	if len(params) == 0 {
		return base
	}
	var sb strings.Builder
	sb.WriteString(base)
	for _, p := range params {
		sb.WriteByte('-')
		sb.WriteString(encodeParam(p))
	}
	return sb.String()
}

func encodeParam(p any) string {
	switch v := p.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return hashParam(p)
}

func hashParam(p any) string {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(p); err != nil {
		// unencodable values (funcs, channels) still need a deterministic key
		return fmt.Sprintf("%016x", xxhash.Sum64String(fmt.Sprintf("%#v", p)))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(buf.Bytes()))
}
