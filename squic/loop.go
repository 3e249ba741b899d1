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
	"errors"
	"net"
	"os"
	"time"

	"github.com/streamd/streamd/internal/rescue"
	"github.com/streamd/streamd/logger"
	"github.com/streamd/streamd/reassembly"
)

// loop is the engine's single background goroutine: it alternates between
// blocking reads off the UDP socket and, on each read timeout, a
// connection-table sweep plus a retransmit pass.
func (e *Engine) loop() {
	defer e.wg.Done()
	defer rescue.HandleCrash()

	buf := make([]byte, MaxDatagram)
	for e.running.Load() {
		e.mu.Lock()
		conn := e.conn
		timeout := e.recvTO
		e.mu.Unlock()
		if conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				e.sweep()
				continue
			}
			if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
				return
			}
			e.sweep()
			continue
		}

		e.handleDatagram(buf[:n], addr)
	}
}

// handleDatagram runs the per-datagram handling sequence. Only the
// state-change and stream-data upcalls are fired; there is no generic
// per-packet upcall.
func (e *Engine) handleDatagram(raw []byte, addr *net.UDPAddr) {
	p, err := Deserialize(raw)
	if err != nil {
		e.mu.Lock()
		e.metrics.PacketsReceived++
		metricPacketsReceived.Inc()
		e.mu.Unlock()
		return
	}

	e.mu.Lock()
	e.metrics.PacketsReceived++
	metricPacketsReceived.Inc()

	if p.Flags.Has(FlagAck) {
		e.retirePending(p.ConnectionID, p.PacketNumber)
	}

	c, existed := e.conns[p.ConnectionID]
	var stateEvents []StateChange
	var handshakeAck *Packet

	if !existed {
		if !p.Flags.Has(FlagInitial) {
			e.mu.Unlock()
			return
		}
		if len(e.conns) >= MaxConnections {
			e.mu.Unlock()
			return
		}
		c = &connEntry{
			id:          p.ConnectionID,
			addr:        addr,
			lastSeen:    time.Now(),
			state:       StateConnecting,
			reassembler: reassembly.NewSet(),
		}
		e.conns[p.ConnectionID] = c
		e.metrics.ConnectionsOpened++
		metricConnectionsOpened.Inc()
		stateEvents = append(stateEvents, StateChange{ConnectionID: c.id, State: c.state, Addr: c.addr})
		ack := Packet{Flags: FlagHandshake | FlagAck, ConnectionID: c.id, PacketNumber: 1}
		handshakeAck = &ack
	} else {
		if !sameAddr(c.addr, addr) {
			c.addr = addr
			e.metrics.ConnectionsMigrated++
			metricConnectionsMigrated.Inc()
			stateEvents = append(stateEvents, StateChange{ConnectionID: c.id, State: c.state, Addr: c.addr})
		} else {
			c.lastSeen = time.Now()
		}
	}

	if p.Flags.Has(FlagClose) {
		c.state = StateClosed
		delete(e.conns, c.id)
		e.purgePending(c.id)
		e.metrics.ConnectionsClosed++
		metricConnectionsClosed.Inc()
		stateEvents = append(stateEvents, StateChange{ConnectionID: c.id, State: StateClosed, Addr: c.addr})
	} else if c.state == StateConnecting && p.Flags.Has(FlagHandshake) {
		c.state = StateConnected
		stateEvents = append(stateEvents, StateChange{ConnectionID: c.id, State: c.state, Addr: c.addr})
	}

	deliverable := c.state == StateConnected || p.Flags.Has(FlagInitial) || p.Flags.Has(FlagHandshake)

	var dataStreamID uint32
	var dataStart uint64
	var dataEmitted []byte
	var dataAck *Packet
	if deliverable && p.Flags.Has(FlagData) && c.state != StateClosed {
		start, emitted, err := c.reassembler.OnData(p.StreamID, uint64(p.Offset), p.Payload)
		if err == nil {
			dataStreamID, dataStart = p.StreamID, start
			if len(emitted) > 0 {
				dataEmitted = append([]byte(nil), emitted...)
			}
			ack := Packet{Flags: FlagAck, ConnectionID: c.id, PacketNumber: p.PacketNumber, StreamID: p.StreamID, Offset: p.Offset}
			dataAck = &ack
		}
	}

	stateHandler := e.stateHandler
	dataHandler := e.dataHandler
	e.mu.Unlock()

	for _, ev := range stateEvents {
		if stateHandler != nil {
			stateHandler(ev)
		}
	}
	if handshakeAck != nil {
		if err := e.Send(*handshakeAck, addr); err != nil {
			logger.Warnf("squic: send handshake ack: %v", err)
		}
	}
	if dataAck != nil {
		if dataHandler != nil && len(dataEmitted) > 0 {
			dataHandler(c.id, dataStreamID, dataStart, dataEmitted)
		}
		if err := e.Send(*dataAck, addr); err != nil {
			logger.Warnf("squic: send data ack: %v", err)
		}
	}
}

func sameAddr(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

// retirePending removes the pending record matching (connID, pn), if any.
// Caller must hold e.mu.
func (e *Engine) retirePending(connID uint64, pn uint32) {
	for i, r := range e.pending {
		if r.connID == connID && r.packetNum == pn {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// sweep evicts idle connections and retransmits overdue pending records.
// It reads the clock once per pass and uses that instant for every entry.
func (e *Engine) sweep() {
	now := time.Now()

	e.mu.Lock()
	var evicted []StateChange
	for id, c := range e.conns {
		if now.Sub(c.lastSeen) > e.connTO {
			evicted = append(evicted, StateChange{ConnectionID: id, State: StateClosed, Addr: c.addr})
			delete(e.conns, id)
			e.purgePending(id)
			e.metrics.ConnectionsClosed++
			metricConnectionsClosed.Inc()
		}
	}

	type resend struct {
		addr *net.UDPAddr
		pkt  []byte
	}
	var toResend []resend
	kept := e.pending[:0]
	for _, r := range e.pending {
		c, ok := e.conns[r.connID]
		if !ok {
			continue // owner gone: drop silently
		}
		if now.Sub(r.firstSent) >= e.retransInt {
			r.retries++
			r.firstSent = now
			toResend = append(toResend, resend{addr: c.addr, pkt: r.bytes})
			if r.retries >= e.maxRetries {
				continue // retransmit exhaustion: drop silently
			}
		}
		kept = append(kept, r)
	}
	e.pending = kept
	stateHandler := e.stateHandler
	e.mu.Unlock()

	for _, ev := range evicted {
		if stateHandler != nil {
			stateHandler(ev)
		}
	}

	for _, r := range toResend {
		e.mu.Lock()
		conn := e.conn
		e.mu.Unlock()
		if conn == nil {
			continue
		}
		if _, err := conn.WriteToUDP(r.pkt, r.addr); err != nil {
			logger.Warnf("squic: retransmit: %v", err)
			continue
		}
		e.mu.Lock()
		e.metrics.PacketsSent++
		metricPacketsSent.Inc()
		e.mu.Unlock()
	}
}
