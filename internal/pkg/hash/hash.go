// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256String computes the SHA256 hash of a string.
func SHA256String(s string) string {
	return SHA256([]byte(s))
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// Canonical renders a parameter map as key=value pairs sorted by key and
// joined with '&'. Two maps with the same content always render identically.
func Canonical(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// Fingerprint returns a short deterministic hash of an endpoint call.
func Fingerprint(endpoint string, params map[string]string) string {
	return SHA256Short([]byte(endpoint+"?"+Canonical(params)), 16)
}

// LookupKey builds the cache key for a name to id resolution.
func LookupKey(kind, normalizedName string) string {
	return "lookup:" + kind + ":" + SHA256Short([]byte(normalizedName), 16)
}
