// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package form parses application/x-www-form-urlencoded data.
package form

import (
	"net/url"

	"github.com/absmach/wasp/pkg/request"
)

type state uint8

const (
	stateKey state = iota
	stateValue
)

// Parse splits s into key=value pairs separated by '&'. Keys and values
// are percent-decoded, '+' meaning space; a malformed escape leaves that
// key or value as sent. No input is rejected: a pair without '=' yields
// an empty value and empty keys are dropped.
func Parse(s string) *request.Parameters[string] {
	params := request.NewParameters[string]()
	st := stateKey
	keyStart, valStart := 0, -1

	emit := func(end int) {
		keyEnd := end
		if valStart >= 0 {
			keyEnd = valStart - 1
		}
		key := s[keyStart:keyEnd]
		if key == "" {
			return
		}
		value := ""
		if valStart >= 0 {
			value = s[valStart:end]
		}
		params.Append(unescape(key), unescape(value))
	}

	for i := 0; i < len(s); i++ {
		switch st {
		case stateKey:
			switch s[i] {
			case '=':
				valStart = i + 1
				st = stateValue
			case '&':
				emit(i)
				keyStart, valStart = i+1, -1
			}
		case stateValue:
			if s[i] == '&' {
				emit(i)
				keyStart, valStart = i+1, -1
				st = stateKey
			}
		}
	}
	emit(len(s))

	return params
}

// ParseBytes is Parse over a body.
func ParseBytes(b []byte) *request.Parameters[string] {
	return Parse(string(b))
}

func unescape(s string) string {
	u, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return u
}
