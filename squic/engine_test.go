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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New()
	require.NoError(t, e.Init(0))
	require.NoError(t, e.Start())
	t.Cleanup(func() { _ = e.Destroy() })
	return e
}

func newClientSocket(t *testing.T) *net.UDPConn {
	t.Helper()
	c, err := net.ListenUDP("udp", &net.UDPAddr{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sendRaw(t *testing.T, from *net.UDPConn, to *net.UDPAddr, p Packet) {
	t.Helper()
	buf, err := Serialize(p)
	require.NoError(t, err)
	_, err = from.WriteToUDP(buf, to)
	require.NoError(t, err)
}

func readRaw(t *testing.T, c *net.UDPConn) Packet {
	t.Helper()
	buf := make([]byte, MaxDatagram)
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := c.ReadFromUDP(buf)
	require.NoError(t, err)
	p, err := Deserialize(buf[:n])
	require.NoError(t, err)
	return p
}

// S1: handshake + data.
func TestScenario_HandshakeAndData(t *testing.T) {
	e := newTestEngine(t)
	client := newClientSocket(t)

	var mu sync.Mutex
	var gotConn uint64
	var gotStream uint32
	var gotStart uint64
	var gotData []byte
	done := make(chan struct{}, 1)
	e.SetStreamDataHandler(func(connID uint64, streamID uint32, startingOffset uint64, data []byte) {
		mu.Lock()
		gotConn, gotStream, gotStart, gotData = connID, streamID, startingOffset, append([]byte(nil), data...)
		mu.Unlock()
		done <- struct{}{}
	})

	sendRaw(t, client, e.Addr(), Packet{Flags: FlagInitial, ConnectionID: 0xABCDEF, PacketNumber: 0})
	ack := readRaw(t, client)
	assert.True(t, ack.Flags.Has(FlagHandshake))
	assert.True(t, ack.Flags.Has(FlagAck))
	assert.EqualValues(t, 0xABCDEF, ack.ConnectionID)

	sendRaw(t, client, e.Addr(), Packet{Flags: FlagHandshake, ConnectionID: 0xABCDEF, PacketNumber: 1})

	sendRaw(t, client, e.Addr(), Packet{
		Flags: FlagData, ConnectionID: 0xABCDEF, PacketNumber: 7,
		StreamID: 2, Offset: 0, Payload: []byte{0x10, 0x20, 0x30},
	})
	dataAck := readRaw(t, client)
	assert.True(t, dataAck.Flags.Has(FlagAck))
	assert.EqualValues(t, 7, dataAck.PacketNumber)
	assert.EqualValues(t, 2, dataAck.StreamID)
	assert.EqualValues(t, 0, dataAck.Offset)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream data handler never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.EqualValues(t, 0xABCDEF, gotConn)
	assert.EqualValues(t, 2, gotStream)
	assert.EqualValues(t, 0, gotStart)
	assert.Equal(t, []byte{0x10, 0x20, 0x30}, gotData)

	addr, err := e.GetConnection(0xABCDEF)
	require.NoError(t, err)
	assert.Equal(t, client.LocalAddr().(*net.UDPAddr).Port, addr.Port)
}

// S3: retransmit + ACK.
func TestScenario_RetransmitThenAck(t *testing.T) {
	e := New()
	require.NoError(t, e.Init(0))
	e.SetRecvTimeout(50 * time.Millisecond)
	e.retransInt = 100 * time.Millisecond
	require.NoError(t, e.Start())
	t.Cleanup(func() { _ = e.Destroy() })

	client := newClientSocket(t)
	sendRaw(t, client, e.Addr(), Packet{Flags: FlagInitial, ConnectionID: 42})
	_ = readRaw(t, client) // handshake ack
	sendRaw(t, client, e.Addr(), Packet{Flags: FlagHandshake, ConnectionID: 42, PacketNumber: 1})

	require.NoError(t, e.SendToConnection(Packet{Flags: FlagData, ConnectionID: 42, PacketNumber: 100, Payload: []byte("x")}))

	first := readRaw(t, client)
	assert.EqualValues(t, 100, first.PacketNumber)
	second := readRaw(t, client) // retransmit within MAX_RETRIES
	assert.EqualValues(t, 100, second.PacketNumber)

	sendRaw(t, client, e.Addr(), Packet{Flags: FlagAck, ConnectionID: 42, PacketNumber: 100})
	time.Sleep(300 * time.Millisecond)

	before := e.GetMetrics().PacketsSent
	time.Sleep(300 * time.Millisecond)
	after := e.GetMetrics().PacketsSent
	assert.Equal(t, before, after, "no further retransmission after ACK")
	assert.GreaterOrEqual(t, before, uint64(2))
}

// S4: address migration.
func TestScenario_Migration(t *testing.T) {
	e := newTestEngine(t)
	clientA := newClientSocket(t)
	clientB := newClientSocket(t)

	events := make(chan StateChange, 8)
	e.SetStateHandler(func(ch StateChange) { events <- ch })

	sendRaw(t, clientA, e.Addr(), Packet{Flags: FlagInitial, ConnectionID: 99})
	_ = readRaw(t, clientA)
	sendRaw(t, clientA, e.Addr(), Packet{Flags: FlagHandshake, ConnectionID: 99, PacketNumber: 1})

	sendRaw(t, clientB, e.Addr(), Packet{Flags: FlagData, ConnectionID: 99, PacketNumber: 20, Payload: []byte("m")})
	_ = readRaw(t, clientB)

	addr, err := e.GetConnection(99)
	require.NoError(t, err)
	assert.Equal(t, clientB.LocalAddr().(*net.UDPAddr).Port, addr.Port)
	assert.GreaterOrEqual(t, e.GetMetrics().ConnectionsMigrated, uint64(1))

	var sawMigration bool
	for i := 0; i < 4; i++ {
		select {
		case ev := <-events:
			if ev.Addr != nil && ev.Addr.Port == clientB.LocalAddr().(*net.UDPAddr).Port && ev.State == StateConnected {
				sawMigration = true
			}
		case <-time.After(time.Second):
		}
	}
	assert.True(t, sawMigration)
}

// S6: idle eviction.
func TestScenario_IdleEviction(t *testing.T) {
	e := New()
	require.NoError(t, e.Init(0))
	e.connTO = 50 * time.Millisecond
	e.SetRecvTimeout(20 * time.Millisecond)
	require.NoError(t, e.Start())
	t.Cleanup(func() { _ = e.Destroy() })

	client := newClientSocket(t)
	sendRaw(t, client, e.Addr(), Packet{Flags: FlagInitial, ConnectionID: 7})
	_ = readRaw(t, client)
	sendRaw(t, client, e.Addr(), Packet{Flags: FlagHandshake, ConnectionID: 7, PacketNumber: 1})

	_, err := e.GetConnection(7)
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond)

	_, err = e.GetConnection(7)
	assert.Error(t, err)
}

func TestCloseConnection(t *testing.T) {
	e := newTestEngine(t)
	client := newClientSocket(t)

	sendRaw(t, client, e.Addr(), Packet{Flags: FlagInitial, ConnectionID: 5})
	_ = readRaw(t, client)

	require.NoError(t, e.CloseConnection(5))
	closePkt := readRaw(t, client)
	assert.True(t, closePkt.Flags.Has(FlagClose))

	_, err := e.GetConnection(5)
	assert.Error(t, err)

	err = e.CloseConnection(5)
	assert.Error(t, err)
}

func TestConnectionCapacityBound(t *testing.T) {
	e := newTestEngine(t)
	client := newClientSocket(t)

	for i := uint64(0); i < MaxConnections; i++ {
		sendRaw(t, client, e.Addr(), Packet{Flags: FlagInitial, ConnectionID: i + 1})
		_ = readRaw(t, client)
	}

	sendRaw(t, client, e.Addr(), Packet{Flags: FlagInitial, ConnectionID: MaxConnections + 1})
	_ = client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, MaxDatagram)
	_, _, err := client.ReadFromUDP(buf)
	assert.Error(t, err, "33rd INITIAL must be rejected silently, no handshake ack")
}
