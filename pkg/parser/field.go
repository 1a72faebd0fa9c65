// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"strings"

	"github.com/absmach/wasp/pkg/errors"
	"github.com/absmach/wasp/pkg/parser/chars"
)

// ParseField splits one "name: value" line (without its line ending)
// using the header grammar: the name is made of token bytes, the value
// may hold anything but control bytes other than HT. Surrounding
// whitespace of the value is dropped.
func ParseField(line []byte) (name, value string, err error) {
	i := 0
	for ; i < len(line) && line[i] != ':'; i++ {
		if !chars.IsToken(int(line[i])) {
			return "", "", errors.Parsef("unable to parse field name: unexpected byte %q", line[i])
		}
	}
	if i == 0 {
		return "", "", errors.Parse("empty field name")
	}
	if i == len(line) {
		return "", "", errors.Parse("missing ':' after field name")
	}
	for _, c := range line[i+1:] {
		if c != '\t' && chars.IsControl(int(c)) {
			return "", "", errors.Parsef("unable to parse field value: unexpected byte %q", c)
		}
	}
	return string(line[:i]), strings.Trim(string(line[i+1:]), " \t"), nil
}

// HasToken reports whether the comma-separated list v contains tok,
// ignoring case.
func HasToken(v, tok string) bool {
	for _, part := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(part), tok) {
			return true
		}
	}
	return false
}
