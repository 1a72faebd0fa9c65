// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"sort"
	"strings"
)

// Well-known header names.
const (
	HeaderConnection       = "Connection"
	HeaderContentLength    = "Content-Length"
	HeaderContentType      = "Content-Type"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderExpect           = "Expect"
)

// Header is a read-only view of request headers. Names keep the case they
// arrived with; lookups ignore case.
type Header struct {
	m map[string]string
}

// MakeHeader wraps m. The caller must not modify m afterwards.
func MakeHeader(m map[string]string) Header {
	return Header{m: m}
}

// Lookup returns the value stored under name, ignoring case. An exact
// match wins over a case-insensitive one.
func (h Header) Lookup(name string) (string, bool) {
	return LookupFold(h.m, name)
}

// Get returns the value for name, or "" if absent.
func (h Header) Get(name string) string {
	v, _ := h.Lookup(name)
	return v
}

// Len returns the number of stored headers.
func (h Header) Len() int {
	return len(h.m)
}

// Names returns the stored header names, sorted.
func (h Header) Names() []string {
	names := make([]string, 0, len(h.m))
	for name := range h.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupFold finds name in m ignoring case.
func LookupFold(m map[string]string, name string) (string, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// SetFold stores value under name, replacing any entry whose name differs
// only by case. The map holds at most one entry per header.
func SetFold(m map[string]string, name, value string) {
	for k := range m {
		if k != name && strings.EqualFold(k, name) {
			delete(m, k)
		}
	}
	m[name] = value
}
