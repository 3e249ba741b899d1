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
	"time"

	"github.com/streamd/streamd/reassembly"
)

// State is a connection's position in the handshake/close state machine.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// connEntry is the engine's internal table row. Exported snapshots are
// copied out under lock; this type itself never escapes the engine.
type connEntry struct {
	id          uint64
	addr        *net.UDPAddr
	lastSeen    time.Time
	state       State
	reassembler *reassembly.Set
}

// pendingRecord is one outbound DATA packet awaiting ACK.
type pendingRecord struct {
	connID    uint64
	packetNum uint32
	bytes     []byte
	firstSent time.Time
	retries   int
}

// Metrics is an engine-wide counter snapshot.
type Metrics struct {
	PacketsSent         uint64
	PacketsReceived     uint64
	ConnectionsOpened   uint64
	ConnectionsClosed   uint64
	ConnectionsMigrated uint64
}

// StateChange is delivered to the state-change upcall.
type StateChange struct {
	ConnectionID uint64
	State        State
	Addr         *net.UDPAddr
}

// StreamDataHandler is invoked with a copy of newly contiguous bytes.
type StreamDataHandler func(connID uint64, streamID uint32, startingOffset uint64, data []byte)

// StateHandler is invoked on every connection state transition or
// address migration.
type StateHandler func(change StateChange)
