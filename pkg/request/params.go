// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package request

// Parameters holds parsed key/value data in two views: the last value
// seen for each key, and every value for each key in arrival order.
//
// Append is the only mutator, so every key in the last-wins view has at
// least one entry in the multi-value view and the last of those entries
// equals the last-wins value. A nil *Parameters behaves as empty.
type Parameters[V any] struct {
	last map[string]V
	all  map[string][]V
	keys []string
}

// NewParameters returns an empty Parameters.
func NewParameters[V any]() *Parameters[V] {
	return &Parameters[V]{
		last: make(map[string]V),
		all:  make(map[string][]V),
	}
}

// Append records value under key.
func (p *Parameters[V]) Append(key string, value V) {
	if _, ok := p.all[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.last[key] = value
	p.all[key] = append(p.all[key], value)
}

// Get returns the last value appended for key.
func (p *Parameters[V]) Get(key string) (V, bool) {
	if p == nil {
		var zero V
		return zero, false
	}
	v, ok := p.last[key]
	return v, ok
}

// Value returns the last value for key, or the zero value.
func (p *Parameters[V]) Value(key string) V {
	v, _ := p.Get(key)
	return v
}

// GetAll returns every value appended for key.
func (p *Parameters[V]) GetAll(key string) []V {
	if p == nil {
		return nil
	}
	return p.all[key]
}

// Has reports whether key was appended at least once.
func (p *Parameters[V]) Has(key string) bool {
	if p == nil {
		return false
	}
	_, ok := p.last[key]
	return ok
}

// Len returns the number of distinct keys.
func (p *Parameters[V]) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the distinct keys in first-seen order.
func (p *Parameters[V]) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return keys
}
