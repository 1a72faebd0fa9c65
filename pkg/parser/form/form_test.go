// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package form

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string][]string
	}{
		{
			name:  "three pairs",
			input: "hello=world&content=string&params=text",
			want: map[string][]string{
				"hello":   {"world"},
				"content": {"string"},
				"params":  {"text"},
			},
		},
		{
			name:  "repeated key",
			input: "a=1&a=2",
			want:  map[string][]string{"a": {"1", "2"}},
		},
		{
			name:  "missing equals",
			input: "flag&x=1",
			want:  map[string][]string{"flag": {""}, "x": {"1"}},
		},
		{
			name:  "trailing key without value",
			input: "x=1&flag",
			want:  map[string][]string{"x": {"1"}, "flag": {""}},
		},
		{
			name:  "empty value",
			input: "x=",
			want:  map[string][]string{"x": {""}},
		},
		{
			name:  "equals inside value",
			input: "expr=a=b",
			want:  map[string][]string{"expr": {"a=b"}},
		},
		{
			name:  "empty segments and keys",
			input: "&&=v&a=1&",
			want:  map[string][]string{"a": {"1"}},
		},
		{
			name:  "percent and plus decoding",
			input: "na%20me=J+Doe&mail=a%40b.c",
			want:  map[string][]string{"na me": {"J Doe"}, "mail": {"a@b.c"}},
		},
		{
			name:  "malformed escape kept raw",
			input: "p=100%&q=%zz",
			want:  map[string][]string{"p": {"100%"}, "q": {"%zz"}},
		},
		{
			name:  "empty input",
			input: "",
			want:  map[string][]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := Parse(tt.input)
			got := map[string][]string{}
			for _, k := range params.Keys() {
				got[k] = params.GetAll(k)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for k, vals := range tt.want {
				if last := params.Value(k); last != vals[len(vals)-1] {
					t.Errorf("Value(%q) = %q, want %q", k, last, vals[len(vals)-1])
				}
			}
		})
	}
}

func TestParseBytes(t *testing.T) {
	params := ParseBytes([]byte("hello=world"))
	if params.Len() != 1 || params.Value("hello") != "world" {
		t.Errorf("unexpected params %v", params.Keys())
	}
}
