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

package wsctl

import (
	"bufio"
	"net"
)

// Conn is a handshaken WebSocket connection: a thin buffered reader over
// the raw net.Conn plus frame read/write helpers.
type Conn struct {
	r *bufio.Reader
	c net.Conn
}

func newConn(c net.Conn) *Conn {
	return &Conn{c: c, r: bufio.NewReader(c)}
}

func (c *Conn) ReadFrame() (Frame, error) {
	return readFrame(c.r)
}

func (c *Conn) WriteText(payload []byte) error {
	return writeFrame(c.c, OpText, payload)
}

func (c *Conn) WriteBinary(payload []byte) error {
	return writeFrame(c.c, OpBinary, payload)
}

func (c *Conn) WriteClose(payload []byte) error {
	return writeFrame(c.c, OpClose, payload)
}

func (c *Conn) WritePong(payload []byte) error {
	return writeFrame(c.c, OpPong, payload)
}

func (c *Conn) Close() error {
	return c.c.Close()
}
