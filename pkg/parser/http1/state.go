// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http1

// State is the position of the request-line and header state machine.
type State uint8

const (
	StateMethodStart State = iota
	StateMethod
	StatePath
	StateQuery
	StateFragment
	StateVersionH
	StateVersionT1
	StateVersionT2
	StateVersionP
	StateVersionSlash
	StateMajorStart
	StateMajor
	StateMinorStart
	StateMinor
	StateRequestLineLF
	StateHeaderLineStart
	StateHeaderLWS
	StateHeaderName
	StateSpaceBeforeValue
	StateHeaderValue
	StateHeaderLF
	StateFinalLF

	// Terminal states: the header block is complete.
	StateBody
	StateChunkSize
	StateDone
)

var stateNames = [...]string{
	StateMethodStart:      "method_start",
	StateMethod:           "method",
	StatePath:             "path",
	StateQuery:            "query",
	StateFragment:         "fragment",
	StateVersionH:         "version_h",
	StateVersionT1:        "version_ht",
	StateVersionT2:        "version_htt",
	StateVersionP:         "version_http",
	StateVersionSlash:     "version_slash",
	StateMajorStart:       "major_start",
	StateMajor:            "major",
	StateMinorStart:       "minor_start",
	StateMinor:            "minor",
	StateRequestLineLF:    "request_line_lf",
	StateHeaderLineStart:  "header_line_start",
	StateHeaderLWS:        "header_lws",
	StateHeaderName:       "header_name",
	StateSpaceBeforeValue: "space_before_value",
	StateHeaderValue:      "header_value",
	StateHeaderLF:         "header_lf",
	StateFinalLF:          "final_lf",
	StateBody:             "body",
	StateChunkSize:        "chunk_size",
	StateDone:             "done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether s ends the header stage.
func (s State) Terminal() bool {
	return s >= StateBody
}
