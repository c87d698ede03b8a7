package conduit

import "strings"

// Header is a simple multi-value header map, keyed by lower-cased field
// name (the parser lower-cases each field name as it stores it).
type Header map[string][]string

func canonKey(name string) string { return strings.ToLower(name) }

// Add appends a value, keeping any existing values for name.
func (h Header) Add(name, value string) {
	key := canonKey(name)
	h[key] = append(h[key], value)
}

// Set replaces all values for name with a single value.
func (h Header) Set(name, value string) { h[canonKey(name)] = []string{value} }

// Get returns the first value for name, or "" if absent.
func (h Header) Get(name string) string {
	vs := h[canonKey(name)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns all values for name.
func (h Header) Values(name string) []string { return h[canonKey(name)] }

// Has reports whether name is present at all.
func (h Header) Has(name string) bool {
	_, ok := h[canonKey(name)]
	return ok
}

// Del removes all values for name.
func (h Header) Del(name string) { delete(h, canonKey(name)) }

// hasToken reports whether name's comma-separated value list contains
// token, case-insensitively — used for Connection: keep-alive/close and
// Transfer-Encoding: chunked.
func (h Header) hasToken(name, token string) bool {
	for _, v := range h[canonKey(name)] {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
