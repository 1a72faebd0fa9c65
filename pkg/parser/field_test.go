// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"errors"
	"testing"

	perrors "github.com/absmach/wasp/pkg/errors"
)

func TestParseField(t *testing.T) {
	tests := []struct {
		line    string
		name    string
		value   string
		wantErr bool
	}{
		{line: "Host: x", name: "Host", value: "x"},
		{line: "X-Time:  10:20:30 \t", name: "X-Time", value: "10:20:30"},
		{line: "Empty:", name: "Empty", value: ""},
		{line: ": value", wantErr: true},
		{line: "No colon", wantErr: true},
		{line: "Bad Name: x", wantErr: true},
		{line: "Ctl: a\x01b", wantErr: true},
		{line: "Tab: a\tb", name: "Tab", value: "a\tb"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			name, value, err := ParseField([]byte(tt.line))
			if tt.wantErr {
				if !errors.Is(err, perrors.ErrParse) {
					t.Fatalf("expected parse error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseField() error = %v", err)
			}
			if name != tt.name || value != tt.value {
				t.Errorf("ParseField() = %q, %q; want %q, %q", name, value, tt.name, tt.value)
			}
		})
	}
}

func TestHasToken(t *testing.T) {
	if !HasToken("Keep-Alive", "keep-alive") {
		t.Error("expected case-insensitive match")
	}
	if !HasToken("TE, close", "close") {
		t.Error("expected list match")
	}
	if HasToken("keep-alive-ish", "keep-alive") {
		t.Error("expected exact token match")
	}
}

func TestLimits_WithDefaults(t *testing.T) {
	l := Limits{MaxBodySize: 5}.WithDefaults()
	if l.MaxHeaderSize != DefaultMaxHeaderSize || l.MaxReadSize != DefaultMaxReadSize || l.MaxBodySize != 5 {
		t.Errorf("unexpected limits %+v", l)
	}
}
