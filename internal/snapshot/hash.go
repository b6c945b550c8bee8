// Package snapshot derives content hashes, field summaries, and field
// diffs from raw listing payloads. Everything here is a pure
// computation; persistence lives in the db package.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Canonicalize serializes a payload into a stable JSON form: object
// keys sorted, scalar values coerced the same way regardless of how
// the decoder typed them. Two payloads with the same content always
// produce the same bytes.
func Canonicalize(payload map[string]interface{}) string {
	var b strings.Builder
	writeCanonical(&b, payload)
	return b.String()
}

// ContentHash returns the SHA-256 hex digest of the canonical form.
// This is the snapshot identity: a re-fetch of an unchanged listing
// hashes identically and is not stored again.
func ContentHash(payload map[string]interface{}) string {
	sum := sha256.Sum256([]byte(Canonicalize(payload)))
	return hex.EncodeToString(sum[:])
}

// HashStrings hashes a list of strings order-sensitively, so
// additions, removals, and reorderings all change the digest.
func HashStrings(values []string) string {
	h := sha256.New()
	for _, v := range values {
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashText hashes a free-text blob.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func writeCanonical(b *strings.Builder, v interface{}) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case string:
		writeJSONString(b, val)
	case float64:
		b.WriteString(formatNumber(val))
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case json.Number:
		b.WriteString(val.String())
	case []interface{}:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSONString(b, k)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	default:
		// Unhandled types fall back to their encoded form so the
		// canonicalization never drops content silently.
		if enc, err := json.Marshal(val); err == nil {
			b.Write(enc)
		} else {
			b.WriteString("null")
		}
	}
}

// formatNumber renders integral floats without a trailing ".0" so a
// feed that flips between 541330 and 541330.0 hashes identically.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func writeJSONString(b *strings.Builder, s string) {
	enc, err := json.Marshal(s)
	if err != nil {
		b.WriteString(`""`)
		return
	}
	b.Write(enc)
}
