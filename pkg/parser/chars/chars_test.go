// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package chars

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		c       int
		char    bool
		control bool
		special bool
		digit   bool
	}{
		{"EOF", EOF, false, false, false, false},
		{"NUL", 0, true, true, false, false},
		{"tab", '\t', true, true, true, false},
		{"unit separator", 31, true, true, false, false},
		{"space", ' ', true, false, true, false},
		{"digit zero", '0', true, false, false, true},
		{"digit nine", '9', true, false, false, true},
		{"colon", ':', true, false, true, false},
		{"letter", 'G', true, false, false, false},
		{"dash", '-', true, false, false, false},
		{"DEL", 127, true, true, false, false},
		{"high byte", 128, false, false, false, false},
		{"max byte", 255, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsChar(tt.c); got != tt.char {
				t.Errorf("IsChar(%d) = %v, want %v", tt.c, got, tt.char)
			}
			if got := IsControl(tt.c); got != tt.control {
				t.Errorf("IsControl(%d) = %v, want %v", tt.c, got, tt.control)
			}
			if got := IsSpecial(tt.c); got != tt.special {
				t.Errorf("IsSpecial(%d) = %v, want %v", tt.c, got, tt.special)
			}
			if got := IsDigit(tt.c); got != tt.digit {
				t.Errorf("IsDigit(%d) = %v, want %v", tt.c, got, tt.digit)
			}
		})
	}
}

func TestSpecialSet(t *testing.T) {
	set := "()<>@,;:\\\"/[]?={} \t"
	count := 0
	for c := 0; c < 256; c++ {
		if IsSpecial(c) {
			count++
		}
	}
	if count != len(set) {
		t.Errorf("expected %d special bytes, got %d", len(set), count)
	}
	for i := 0; i < len(set); i++ {
		if !IsSpecial(int(set[i])) {
			t.Errorf("expected %q to be special", set[i])
		}
		if IsToken(int(set[i])) {
			t.Errorf("expected %q not to be a token byte", set[i])
		}
	}
}

func TestUnhex(t *testing.T) {
	for c, want := range map[int]int64{'0': 0, '9': 9, 'a': 10, 'F': 15} {
		got, ok := Unhex(c)
		if !ok || got != want {
			t.Errorf("Unhex(%q) = %d, %v; want %d", c, got, ok, want)
		}
		if !IsHex(c) {
			t.Errorf("IsHex(%q) = false", c)
		}
	}
	if _, ok := Unhex('g'); ok {
		t.Error("expected 'g' to be rejected")
	}
}
