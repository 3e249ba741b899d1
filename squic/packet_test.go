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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	p := Packet{
		Flags:        FlagData | FlagInitial,
		ConnectionID: 0xABCDEF,
		PacketNumber: 7,
		StreamID:     2,
		Offset:       0,
		Payload:      []byte{0x10, 0x20, 0x30},
	}

	buf, err := Serialize(p)
	require.NoError(t, err)
	assert.Len(t, buf, HeaderSize+3)

	got, err := Deserialize(buf)
	require.NoError(t, err)
	assert.Equal(t, p.Flags, got.Flags)
	assert.Equal(t, p.ConnectionID, got.ConnectionID)
	assert.Equal(t, p.PacketNumber, got.PacketNumber)
	assert.Equal(t, p.StreamID, got.StreamID)
	assert.Equal(t, p.Offset, got.Offset)
	assert.Equal(t, p.Payload, got.Payload)
}

func TestSerializeMaxPayloadBoundary(t *testing.T) {
	p := Packet{ConnectionID: 1, Payload: make([]byte, MaxPayload)}
	buf, err := Serialize(p)
	require.NoError(t, err)
	assert.Len(t, buf, MaxDatagram)
	assert.Equal(t, HeaderSize+MaxPayload, len(buf))
}

func TestSerializeOverMaxPayloadRejected(t *testing.T) {
	p := Packet{ConnectionID: 1, Payload: make([]byte, MaxPayload+1)}
	_, err := Serialize(p)
	assert.Error(t, err)
}

func TestDeserializeDeclaredLengthExceedsBufferDropped(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[21], buf[22], buf[23], buf[24] = 0, 0, 0, 10 // declares 10 bytes payload with none present
	_, err := Deserialize(buf)
	assert.Error(t, err)
}

func TestDeserializeShortBufferDropped(t *testing.T) {
	_, err := Deserialize(make([]byte, HeaderSize-1))
	assert.Error(t, err)
}

func TestFlagsHas(t *testing.T) {
	f := FlagHandshake | FlagAck
	assert.True(t, f.Has(FlagHandshake))
	assert.True(t, f.Has(FlagAck))
	assert.False(t, f.Has(FlagData))
}
