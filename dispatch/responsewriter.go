// Copyright 2025 The streamd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dispatch owns the TCP (optionally TLS) listener and the
// per-connection worker that decides, for each accepted stream, whether
// it is a WebSocket upgrade or a plain HTTP request. It plays the role
// the teacher's sniffer+pipeline pair played for routing a parsed record
// to a handler, except the connection here is live and owned, not a
// passive packet capture.
package dispatch

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// rawResponseWriter implements http.ResponseWriter directly over a raw
// net.Conn, since the connection was hand-parsed by ParseRequestLine
// rather than handed to net/http.Server's own accept loop.
type rawResponseWriter struct {
	w           *bufio.Writer
	header      http.Header
	wroteHeader bool
	status      int
}

func newRawResponseWriter(conn net.Conn) *rawResponseWriter {
	return &rawResponseWriter{w: bufio.NewWriter(conn), header: make(http.Header)}
}

func (rw *rawResponseWriter) Header() http.Header { return rw.header }

func (rw *rawResponseWriter) WriteHeader(status int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.status = status

	fmt.Fprintf(rw.w, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	if rw.header.Get("Content-Type") == "" {
		rw.header.Set("Content-Type", "application/json; charset=utf-8")
	}
	_ = rw.header.Write(rw.w)
	fmt.Fprint(rw.w, "\r\n")
}

func (rw *rawResponseWriter) Write(p []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.w.Write(p)
}

func (rw *rawResponseWriter) flush() error {
	return rw.w.Flush()
}
