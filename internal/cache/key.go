// Package cache holds the response-cache contract helpers shared by every
// backend: deterministic keys, the no-op store, and digesting.
package cache

import (
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Key returns the canonical cache key for a GET of endpoint with params.
// Params are sorted by name then value and empty values are skipped, so two
// requests that differ only in parameter order share a key.
func Key(endpoint string, params url.Values) string {
	type kv struct{ k, v string }
	var pairs []kv
	for k, vs := range params {
		for _, v := range vs {
			if v == "" {
				continue
			}
			pairs = append(pairs, kv{k, v})
		}
	}
	if len(pairs) == 0 {
		return "GET:" + endpoint
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	var b strings.Builder
	b.WriteString("GET:")
	b.WriteString(endpoint)
	b.WriteByte('?')
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.v))
	}
	return b.String()
}

// Digest returns the hex blake2b-256 of key. Backends store digests so key
// length never matters.
func Digest(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
