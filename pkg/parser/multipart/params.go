// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package multipart

import "strings"

// parseParams splits a header value such as
//
//	form-data; name="avatar"; filename="me \"1\".jpg"
//
// into its leading value and a parameter map with lowercased keys. Values
// may be tokens or quoted strings; inside quotes a backslash escapes the
// next byte. ok is false for an unterminated quoted string.
func parseParams(s string) (value string, params map[string]string, ok bool) {
	params = make(map[string]string)
	i := strings.IndexByte(s, ';')
	if i < 0 {
		return strings.TrimSpace(s), params, true
	}
	value = strings.TrimSpace(s[:i])
	s = s[i+1:]

	for {
		s = strings.TrimLeft(s, " \t;")
		if s == "" {
			return value, params, true
		}

		eq := strings.IndexAny(s, "=;")
		if eq < 0 || s[eq] == ';' {
			// Bare attribute without a value.
			end := len(s)
			if eq >= 0 {
				end = eq
			}
			params[strings.ToLower(strings.TrimSpace(s[:end]))] = ""
			s = s[end:]
			continue
		}
		key := strings.ToLower(strings.TrimSpace(s[:eq]))
		s = strings.TrimLeft(s[eq+1:], " \t")

		var v string
		if strings.HasPrefix(s, `"`) {
			var rest string
			v, rest, ok = unquote(s[1:])
			if !ok {
				return value, params, false
			}
			s = rest
		} else {
			end := strings.IndexByte(s, ';')
			if end < 0 {
				end = len(s)
			}
			v = strings.TrimSpace(s[:end])
			s = s[end:]
		}
		if key != "" {
			params[key] = v
		}
	}
}

// unquote reads a quoted string body up to its closing quote and returns
// the unescaped text and whatever follows the quote.
func unquote(s string) (v, rest string, ok bool) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			if i+1 == len(s) {
				return "", "", false
			}
			i++
			b.WriteByte(s[i])
		case '"':
			return b.String(), s[i+1:], true
		default:
			b.WriteByte(c)
		}
	}
	return "", "", false
}
