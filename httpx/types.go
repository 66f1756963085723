package httpx

import "sort"

// HeaderMap maps a header name to its comma-separated values. Keys are
// case-sensitive: "content-length" and "Content-Length" are different
// headers.
type HeaderMap map[string][]string

func (h HeaderMap) Get(key string) string {
	if vv := h[key]; len(vv) > 0 {
		return vv[0]
	}
	return ""
}

func (h HeaderMap) Values(key string) []string {
	return h[key]
}

func (h HeaderMap) Has(key string) bool {
	_, ok := h[key]
	return ok
}

// Set replaces any existing values for key.
func (h HeaderMap) Set(key string, values ...string) {
	if h == nil || len(values) == 0 {
		return
	}
	h[key] = append([]string(nil), values...)
}

func (h HeaderMap) Add(key, value string) {
	if h == nil {
		return
	}
	h[key] = append(h[key], value)
}

func (h HeaderMap) Del(key string) {
	delete(h, key)
}

func (h HeaderMap) Clone() HeaderMap {
	if h == nil {
		return nil
	}
	out := make(HeaderMap, len(h))
	for k, vv := range h {
		out[k] = append([]string(nil), vv...)
	}
	return out
}

// Keys returns the header names in sorted order.
func (h HeaderMap) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
