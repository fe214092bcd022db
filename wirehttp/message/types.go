package message

import (
	"slices"
	"strings"

	"github.com/go-analyze/bulk"
)

// Method is an HTTP request method supported by the encoder.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodDelete Method = "DELETE"
	MethodHead   Method = "HEAD"
)

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	switch m {
	case MethodGet, MethodPost, MethodPut, MethodDelete, MethodHead:
		return true
	default:
		return false
	}
}

// ParseMethod converts a method token (case-insensitive) into a Method.
func ParseMethod(s string) (Method, bool) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	return m, m.Valid()
}

// Header is a single header field. Names keep the casing they were given.
type Header struct {
	Name  string `json:"name" msgpack:"n"`
	Value string `json:"value" msgpack:"v"`
}

// Headers is an ordered header list with case-insensitive access.
// Order is insertion order and is what the encoder writes.
type Headers []Header

// Get returns the value of the first header with the given name (case-insensitive).
// Returns empty string if not found.
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value
		}
	}
	return ""
}

// Has reports whether a header with the given name exists.
func (h Headers) Has(name string) bool {
	return slices.ContainsFunc(h, func(hdr Header) bool {
		return strings.EqualFold(hdr.Name, name)
	})
}

// Values returns every value recorded for name, in order.
func (h Headers) Values(name string) []string {
	var values []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			values = append(values, hdr.Value)
		}
	}
	return values
}

// Set replaces the value of the first header with the given name, keeping its
// position, or appends a new header.
func (h *Headers) Set(name, value string) {
	for i, hdr := range *h {
		if strings.EqualFold(hdr.Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: value})
}

// Add appends a header without replacing existing ones.
func (h *Headers) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Remove removes all headers with the given name (case-insensitive).
func (h *Headers) Remove(name string) {
	*h = bulk.SliceFilterInPlace(func(hdr Header) bool {
		return !strings.EqualFold(hdr.Name, name)
	}, *h)
}

// Clone returns an independent copy.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	return slices.Clone(h)
}

// Merge returns a copy of h with every header of override applied through Set,
// so override wins on name collisions.
func (h Headers) Merge(override Headers) Headers {
	merged := h.Clone()
	for _, hdr := range override {
		merged.Set(hdr.Name, hdr.Value)
	}
	return merged
}
