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

package squic

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamd/streamd/internal/xerr"
)

const (
	// MaxConnections bounds the connection table.
	MaxConnections = 32

	// MaxPending bounds the retransmit queue.
	MaxPending = 32

	// DefaultConnTimeout evicts a connection idle longer than this.
	DefaultConnTimeout = 30 * time.Second

	// DefaultRetransInterval is the minimum spacing between resends of an
	// unacknowledged DATA packet.
	DefaultRetransInterval = 1 * time.Second

	// DefaultMaxRetries caps how many times one pending record is resent;
	// it is silently dropped right after its last resend.
	DefaultMaxRetries = 3

	// DefaultRecvTimeout bounds how long one recvfrom blocks before the
	// loop wakes up to run its periodic sweep.
	DefaultRecvTimeout = 1 * time.Second
)

var (
	metricPacketsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "squic_packets_sent_total",
		Help: "Total datagrams sent by the transport engine.",
	})
	metricPacketsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "squic_packets_received_total",
		Help: "Total datagrams received by the transport engine.",
	})
	metricConnectionsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "squic_connections_opened_total",
		Help: "Total connections admitted into the table.",
	})
	metricConnectionsClosed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "squic_connections_closed_total",
		Help: "Total connections evicted or explicitly closed.",
	})
	metricConnectionsMigrated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "squic_connections_migrated_total",
		Help: "Total address-migration events observed.",
	})
)

func init() {
	prometheus.MustRegister(
		metricPacketsSent, metricPacketsReceived, metricConnectionsOpened,
		metricConnectionsClosed, metricConnectionsMigrated,
	)
}

// Engine owns one UDP socket, the connection table and the retransmit
// queue. The zero value is not usable; construct with New.
type Engine struct {
	mu         sync.Mutex
	conns      map[uint64]*connEntry
	pending    []*pendingRecord
	metrics    Metrics
	conn       *net.UDPConn
	running    atomic.Bool
	recvTO     time.Duration
	retransInt time.Duration
	maxRetries int
	connTO     time.Duration

	stateHandler StateHandler
	dataHandler  StreamDataHandler

	wg sync.WaitGroup
}

// New allocates an Engine with default timers; call Init to bind the
// socket.
func New() *Engine {
	return &Engine{
		conns:      make(map[uint64]*connEntry),
		recvTO:     DefaultRecvTimeout,
		retransInt: DefaultRetransInterval,
		maxRetries: DefaultMaxRetries,
		connTO:     DefaultConnTimeout,
	}
}

// Init binds the UDP socket on port. Call once, before Start.
func (e *Engine) Init(port int) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return xerr.Wrap(xerr.KindIO, err, "squic: bind udp socket")
	}
	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()
	return nil
}

// Addr returns the socket's bound local address. Only valid after Init.
func (e *Engine) Addr() *net.UDPAddr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// SetStateHandler registers the connection-state-changed upcall.
func (e *Engine) SetStateHandler(h StateHandler) {
	e.mu.Lock()
	e.stateHandler = h
	e.mu.Unlock()
}

// SetStreamDataHandler registers the ordered-stream-data-ready upcall.
func (e *Engine) SetStreamDataHandler(h StreamDataHandler) {
	e.mu.Lock()
	e.dataHandler = h
	e.mu.Unlock()
}

// SetRecvTimeout updates the socket read deadline and sweep cadence.
func (e *Engine) SetRecvTimeout(d time.Duration) {
	e.mu.Lock()
	e.recvTO = d
	e.mu.Unlock()
}

// Start spawns the receive/timer loop. Idempotent: calling twice on a
// running engine is a no-op.
func (e *Engine) Start() error {
	if e.conn == nil {
		return xerr.Misuse("squic: Start called before Init")
	}
	if !e.running.CompareAndSwap(false, true) {
		return nil
	}
	e.wg.Add(1)
	go e.loop()
	return nil
}

// Stop signals the loop to exit and unblocks the current recvfrom.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn != nil {
		_ = conn.SetReadDeadline(time.Now())
	}
}

// Join blocks until the receive loop has exited.
func (e *Engine) Join() {
	e.wg.Wait()
}

// Destroy stops, joins and releases the socket.
func (e *Engine) Destroy() error {
	e.Stop()
	e.Join()
	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// GetMetrics returns a snapshot copy of the engine-wide counters.
func (e *Engine) GetMetrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// GetConnection returns the peer address currently on file for id.
func (e *Engine) GetConnection(id uint64) (*net.UDPAddr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[id]
	if !ok {
		return nil, xerr.NotFound("squic: connection %d not found", id)
	}
	return c.addr, nil
}

// GetConnectionState returns the current state of id.
func (e *Engine) GetConnectionState(id uint64) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.conns[id]
	if !ok {
		return 0, xerr.NotFound("squic: connection %d not found", id)
	}
	return c.state, nil
}

// Send serializes p and writes one datagram to addr. DATA-flagged packets
// are additionally recorded in the retransmit queue.
func (e *Engine) Send(p Packet, addr *net.UDPAddr) error {
	buf, err := Serialize(p)
	if err != nil {
		return err
	}

	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return xerr.Misuse("squic: Send called before Init")
	}

	if _, err := conn.WriteToUDP(buf, addr); err != nil {
		return xerr.Wrap(xerr.KindIO, err, "squic: send datagram")
	}

	e.mu.Lock()
	e.metrics.PacketsSent++
	metricPacketsSent.Inc()
	if p.Flags.Has(FlagData) {
		e.recordPending(p.ConnectionID, p.PacketNumber, buf)
	}
	e.mu.Unlock()
	return nil
}

// recordPending appends a pending record, dropping the oldest one if the
// queue is at capacity. Caller must hold e.mu.
func (e *Engine) recordPending(connID uint64, pn uint32, buf []byte) {
	if len(e.pending) >= MaxPending {
		e.pending = e.pending[1:]
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	e.pending = append(e.pending, &pendingRecord{
		connID: connID, packetNum: pn, bytes: cp, firstSent: time.Now(),
	})
}

// SendToConnection looks up id's current address and sends p there.
func (e *Engine) SendToConnection(p Packet) error {
	addr, err := e.GetConnection(p.ConnectionID)
	if err != nil {
		return err
	}
	return e.Send(p, addr)
}

// CloseConnection evicts id (if present and not already closed), freeing
// its reassembler and pending records and notifying the peer.
func (e *Engine) CloseConnection(id uint64) error {
	e.mu.Lock()
	c, ok := e.conns[id]
	if !ok || c.state == StateClosed {
		e.mu.Unlock()
		if !ok {
			return xerr.NotFound("squic: connection %d not found", id)
		}
		return nil
	}
	c.state = StateClosed
	addr := c.addr
	delete(e.conns, id)
	e.purgePending(id)
	e.metrics.ConnectionsClosed++
	metricConnectionsClosed.Inc()
	handler := e.stateHandler
	e.mu.Unlock()

	_ = e.Send(Packet{Flags: FlagClose, ConnectionID: id}, addr)
	if handler != nil {
		handler(StateChange{ConnectionID: id, State: StateClosed, Addr: addr})
	}
	return nil
}

// purgePending removes all pending records owned by connID. Caller must
// hold e.mu.
func (e *Engine) purgePending(connID uint64) {
	kept := e.pending[:0]
	for _, r := range e.pending {
		if r.connID != connID {
			kept = append(kept, r)
		}
	}
	e.pending = kept
}
