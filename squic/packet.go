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

// Package squic is a private, QUIC-flavored datagram transport over raw
// UDP: a fixed 25-byte header, a bounded connection table with a
// handshake/close state machine, per-connection stream reassembly, and a
// retransmit queue. It generalizes the teacher's connstream ownership
// model (one goroutine per flow, hooks fired for state/data events) onto
// a single shared UDP socket instead of a sniffed/dialed stream per peer.
package squic

import (
	"encoding/binary"

	"github.com/streamd/streamd/internal/xerr"
)

// Flags is the one-byte header bitmask (spec §6.1).
type Flags uint8

const (
	FlagInitial   Flags = 0x01
	FlagHandshake Flags = 0x02
	FlagData      Flags = 0x04
	FlagAck       Flags = 0x08
	FlagClose     Flags = 0x10
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

const (
	// HeaderSize is the fixed wire header length in bytes.
	HeaderSize = 25

	// MaxPayload is the largest payload a packet may carry.
	MaxPayload = 16384

	// MaxDatagram is the largest serialized packet.
	MaxDatagram = HeaderSize + MaxPayload
)

// Packet is one decoded datagram.
type Packet struct {
	Flags        Flags
	ConnectionID uint64
	PacketNumber uint32
	StreamID     uint32
	Offset       uint32
	Payload      []byte
}

// Serialize encodes p into its 25-byte-header wire form. Fails if the
// payload exceeds MaxPayload.
func Serialize(p Packet) ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, xerr.Misuse("squic: payload length %d exceeds max %d", len(p.Payload), MaxPayload)
	}

	buf := make([]byte, HeaderSize+len(p.Payload))
	buf[0] = byte(p.Flags)
	binary.BigEndian.PutUint64(buf[1:9], p.ConnectionID)
	binary.BigEndian.PutUint32(buf[9:13], p.PacketNumber)
	binary.BigEndian.PutUint32(buf[13:17], p.StreamID)
	binary.BigEndian.PutUint32(buf[17:21], p.Offset)
	binary.BigEndian.PutUint32(buf[21:25], uint32(len(p.Payload)))
	copy(buf[HeaderSize:], p.Payload)
	return buf, nil
}

// Deserialize decodes one packet from a received datagram. The returned
// Payload is a slice over buf; callers that retain it across the upcall
// boundary must copy it first.
func Deserialize(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return Packet{}, xerr.Protocol("squic: datagram shorter than header (%d bytes)", len(buf))
	}

	length := binary.BigEndian.Uint32(buf[21:25])
	if int(length) > MaxPayload {
		return Packet{}, xerr.Protocol("squic: declared payload length %d exceeds max", length)
	}
	if len(buf) < HeaderSize+int(length) {
		return Packet{}, xerr.Protocol("squic: declared payload length %d exceeds buffer", length)
	}

	p := Packet{
		Flags:        Flags(buf[0]),
		ConnectionID: binary.BigEndian.Uint64(buf[1:9]),
		PacketNumber: binary.BigEndian.Uint32(buf[9:13]),
		StreamID:     binary.BigEndian.Uint32(buf[13:17]),
		Offset:       binary.BigEndian.Uint32(buf[17:21]),
		Payload:      buf[HeaderSize : HeaderSize+int(length)],
	}
	return p, nil
}
