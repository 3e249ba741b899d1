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

package dispatch

import (
	"bufio"
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/streamd/streamd/internal/rescue"
	"github.com/streamd/streamd/logger"
	"github.com/streamd/streamd/server"
	"github.com/streamd/streamd/wsctl"
)

// DefaultWorkerIOTimeout bounds how long a worker blocks reading the
// request head or a TLS handshake before giving up (spec §5, "per-worker
// receive/send timeouts, default 5s").
const DefaultWorkerIOTimeout = 5 * time.Second

// Acceptor owns the TCP listener and the live-client cap described in
// spec §5: a single accept loop, one detached worker goroutine per
// connection, and a condition variable other code can use to wait for
// the client count to drain (e.g. on shutdown).
type Acceptor struct {
	listener   net.Listener
	srv        *server.Server
	wsctx      *wsctl.Context
	maxClients int
	ioTimeout  time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	clients int
}

// New binds addr (e.g. ":8443"). If both TLS_CERT_PATH and TLS_KEY_PATH
// are set in the environment, the listener wraps the TCP socket in TLS;
// otherwise it serves plaintext (spec §6.4).
func New(addr string, maxClients int, srv *server.Server, wsctx *wsctl.Context) (*Acceptor, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	certPath, keyPath := os.Getenv("TLS_CERT_PATH"), os.Getenv("TLS_KEY_PATH")
	if certPath != "" && keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			_ = ln.Close()
			return nil, err
		}
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}})
	}

	a := &Acceptor{listener: ln, srv: srv, wsctx: wsctx, maxClients: maxClients, ioTimeout: DefaultWorkerIOTimeout}
	a.cond = sync.NewCond(&a.mu)
	return a, nil
}

// Addr returns the bound listener address.
func (a *Acceptor) Addr() net.Addr { return a.listener.Addr() }

// Serve runs the accept loop until the listener is closed.
func (a *Acceptor) Serve() error {
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			return err
		}

		a.mu.Lock()
		if a.clients >= a.maxClients {
			a.mu.Unlock()
			rejectOverCap(conn)
			continue
		}
		a.clients++
		a.mu.Unlock()

		go a.worker(conn)
	}
}

func rejectOverCap(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, _ = conn.Write([]byte("HTTP/1.1 503 Service Unavailable\r\nConnection: close\r\nContent-Length: 15\r\n\r\nserver too busy"))
}

// Shutdown stops accepting new connections and blocks until every
// in-flight worker has drained.
func (a *Acceptor) Shutdown() error {
	err := a.listener.Close()

	a.mu.Lock()
	for a.clients > 0 {
		a.cond.Wait()
	}
	a.mu.Unlock()
	return err
}

func (a *Acceptor) worker(conn net.Conn) {
	defer rescue.HandleCrash()
	defer func() {
		conn.Close()
		a.mu.Lock()
		a.clients--
		a.cond.Broadcast()
		a.mu.Unlock()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(a.ioTimeout))
	r := bufio.NewReader(conn)
	req, err := wsctl.ParseRequestLine(r)
	if err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	if wsctl.IsUpgradeRequest(req) {
		wsConn, err := wsctl.Accept(conn, req)
		if err != nil {
			logger.Warnf("dispatch: websocket handshake failed: %v", err)
			return
		}
		wsctl.Serve(a.wsctx, wsConn, req.Header)
		return
	}

	a.serveHTTP(conn, req)
}

func (a *Acceptor) serveHTTP(conn net.Conn, req *http.Request) {
	_ = conn.SetWriteDeadline(time.Now().Add(a.ioTimeout))

	rw := newRawResponseWriter(conn)
	if a.srv.Match(req) {
		a.srv.ServeHTTP(rw, req)
	} else {
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte("bad request"))
	}
	if err := rw.flush(); err != nil {
		logger.Warnf("dispatch: flush response: %v", err)
	}
}
