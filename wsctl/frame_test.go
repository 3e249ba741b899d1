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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMaskIdempotence(t *testing.T) {
	data := []byte("hello world, this is a test payload")
	key := []byte{0x12, 0x34, 0x56, 0x78}

	masked := append([]byte(nil), data...)
	applyMask(masked, key)
	assert.NotEqual(t, data, masked)

	unmasked := append([]byte(nil), masked...)
	applyMask(unmasked, key)
	assert.Equal(t, data, unmasked)
}

func maskedClientFrame(opcode Opcode, payload []byte) []byte {
	key := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	masked := append([]byte(nil), payload...)
	applyMask(masked, key)

	var buf bytes.Buffer
	buf.WriteByte(0x80 | byte(opcode))
	switch {
	case len(payload) < 126:
		buf.WriteByte(0x80 | byte(len(payload)))
	default:
		panic("test helper only supports small payloads")
	}
	buf.Write(key)
	buf.Write(masked)
	return buf.Bytes()
}

func TestReadFrame_MaskedClientText(t *testing.T) {
	raw := maskedClientFrame(OpText, []byte(`{"type":"ping"}`))
	f, err := readFrame(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.True(t, f.Fin)
	assert.Equal(t, OpText, f.Opcode)
	assert.Equal(t, `{"type":"ping"}`, string(f.Payload))
}

func TestReadFrame_OversizedPayloadRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x82) // FIN + binary
	buf.WriteByte(127)  // 64-bit extended length follows
	length := uint64(MaxInboundPayload + 1)
	ext := make([]byte, 8)
	for i := 0; i < 8; i++ {
		ext[7-i] = byte(length >> (8 * i))
	}
	buf.Write(ext)

	_, err := readFrame(&buf)
	assert.Error(t, err)
}

func TestWriteFrame_UnmaskedServerFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, OpText, []byte("pong")))

	b := buf.Bytes()
	assert.Equal(t, byte(0x80|byte(OpText)), b[0])
	assert.Equal(t, byte(len("pong")), b[1]&0x7F)
	assert.Zero(t, b[1]&0x80, "server frames must not be masked")
}
