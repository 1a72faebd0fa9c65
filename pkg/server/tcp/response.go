// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"bytes"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/absmach/wasp/pkg/request"
)

// writeResponse writes a status line, the given headers, Content-Length,
// Connection and the body in a single write.
func writeResponse(w io.Writer, status int, header map[string]string, body []byte, keepAlive bool) error {
	var b bytes.Buffer
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(status))
	b.WriteByte(' ')
	b.WriteString(http.StatusText(status))
	b.WriteString("\r\n")

	names := make([]string, 0, len(header))
	for name := range header {
		if strings.EqualFold(name, request.HeaderContentLength) || strings.EqualFold(name, request.HeaderConnection) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(header[name])
		b.WriteString("\r\n")
	}

	b.WriteString("Content-Length: ")
	b.WriteString(strconv.Itoa(len(body)))
	if keepAlive {
		b.WriteString("\r\nConnection: keep-alive\r\n\r\n")
	} else {
		b.WriteString("\r\nConnection: close\r\n\r\n")
	}
	b.Write(body)

	_, err := w.Write(b.Bytes())
	return err
}

// writeError answers with status and its reason phrase as a plain text
// body, closing the connection.
func writeError(w io.Writer, status int) error {
	body := http.StatusText(status) + "\n"
	return writeResponse(w, status, map[string]string{
		request.HeaderContentType: "text/plain; charset=utf-8",
	}, []byte(body), false)
}
