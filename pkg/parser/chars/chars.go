// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package chars classifies single bytes the way the HTTP/1.x grammar needs.
//
// Every function takes an int so that EOF (-1) can be passed without a
// separate check; EOF never belongs to any class.
package chars

// EOF is the "no byte" sentinel.
const EOF = -1

// IsChar reports whether c is a 7-bit US-ASCII character.
func IsChar(c int) bool {
	return c >= 0 && c <= 127
}

// IsControl reports whether c is an ASCII control character (0-31 and DEL).
func IsControl(c int) bool {
	return (c >= 0 && c <= 31) || c == 127
}

// IsSpecial reports whether c is one of the HTTP separators.
func IsSpecial(c int) bool {
	switch c {
	case '(', ')', '<', '>', '@', ',', ';', ':', '\\', '"',
		'/', '[', ']', '?', '=', '{', '}', ' ', '\t':
		return true
	default:
		return false
	}
}

// IsDigit reports whether c is an ASCII decimal digit.
func IsDigit(c int) bool {
	return c >= '0' && c <= '9'
}

// IsHex reports whether c is an ASCII hexadecimal digit.
func IsHex(c int) bool {
	return IsDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// IsToken reports whether c may appear in a method or a header name.
func IsToken(c int) bool {
	return IsChar(c) && !IsControl(c) && !IsSpecial(c)
}

// Unhex returns the value of the hexadecimal digit c.
func Unhex(c int) (int64, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int64(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int64(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int64(c-'A') + 10, true
	}
	return 0, false
}
