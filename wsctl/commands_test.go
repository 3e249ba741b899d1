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
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamd/streamd/internal/collab/mediaprobe"
	"github.com/streamd/streamd/internal/collab/memstore"
	"github.com/streamd/streamd/internal/collab/sessionstore"
	"github.com/streamd/streamd/internal/storemodel"
	"github.com/streamd/streamd/squic"
)

// pipeConn returns a handshaken-style *Conn backed by one end of a
// net.Pipe, plus the peer end the test reads frames off of.
func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })
	return newConn(server), client
}

func readBinaryFrame(t *testing.T, peer net.Conn) []byte {
	t.Helper()
	f, err := readFrame(peer)
	require.NoError(t, err)
	require.Equal(t, OpBinary, f.Opcode)
	return f.Payload
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	store := memstore.New()
	media := mediaprobe.New()

	engine := squic.New()
	require.NoError(t, engine.Init(0))
	require.NoError(t, engine.Start())
	t.Cleanup(func() { _ = engine.Destroy() })

	return &Context{
		Engine:   engine,
		Storage:  store,
		Sessions: sessionstore.New(store, nil, 0),
		Media:    media,
	}
}

func TestDispatch_Ping(t *testing.T) {
	ctx := newTestContext(t)
	reply := dispatch(ctx, newSession(), nil, []byte(`{"type":"ping"}`))
	assert.Equal(t, "pong", reply["type"])
	assert.Equal(t, "ok", reply["status"])
}

func TestDispatch_UnknownCommand(t *testing.T) {
	ctx := newTestContext(t)
	reply := dispatch(ctx, newSession(), nil, []byte(`{"type":"does_not_exist"}`))
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, "protocol_error", reply["status"])
}

func TestDispatch_InvalidJSON(t *testing.T) {
	ctx := newTestContext(t)
	reply := dispatch(ctx, newSession(), nil, []byte(`not json`))
	assert.Equal(t, "error", reply["type"])
}

func TestDispatch_ListVideos(t *testing.T) {
	ctx := newTestContext(t)
	require.NoError(t, ctx.Storage.CreateVideo(context.Background(), storemodel.Video{
		ID: "v1", Title: "clip", CreatedAt: time.Now(),
	}))

	reply := dispatch(ctx, newSession(), nil, []byte(`{"type":"list_videos"}`))
	assert.Equal(t, "videos", reply["type"])
	items, ok := reply["items"].([]storemodel.Video)
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestDispatch_WatchUpdateRequiresAuth(t *testing.T) {
	ctx := newTestContext(t)
	reply := dispatch(ctx, newSession(), nil, []byte(`{"type":"watch_update","video_id":"v1","position":12.5}`))
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, "unauthorized", reply["status"])
}

func TestDispatch_WatchUpdateAndGet(t *testing.T) {
	ctx := newTestContext(t)
	sess := newSession()
	sess.UserID, sess.Authenticated = "u1", true

	reply := dispatch(ctx, sess, nil, []byte(`{"type":"watch_update","video_id":"v1","position":42}`))
	assert.Equal(t, "ok", reply["status"])

	reply = dispatch(ctx, sess, nil, []byte(`{"type":"watch_get","video_id":"v1"}`))
	assert.Equal(t, "watch_get", reply["type"])
	assert.InDelta(t, 42.0, reply["position"], 0.001)
}

func TestDispatch_VideoDetailNotFound(t *testing.T) {
	ctx := newTestContext(t)
	reply := dispatch(ctx, newSession(), nil, []byte(`{"type":"video_detail","video_id":"missing"}`))
	assert.Equal(t, "not_found", reply["status"])
}

func TestDispatch_QuicSendUnknownConnection(t *testing.T) {
	ctx := newTestContext(t)
	reply := dispatch(ctx, newSession(), nil, []byte(`{"type":"quic_send","connection_id":999,"payload_hex":"aabb"}`))
	assert.Equal(t, "not_found", reply["status"])
}

func TestDispatch_QuicSendRejectsOversizedPayloadHex(t *testing.T) {
	ctx := newTestContext(t)
	big := make([]byte, maxPayloadHexLen+2)
	for i := range big {
		big[i] = 'a'
	}
	reply := dispatch(ctx, newSession(), nil, []byte(`{"type":"quic_send","connection_id":1,"payload_hex":"`+string(big)+`"}`))
	assert.Equal(t, "misuse", reply["status"])
}

func TestDispatch_StreamStart(t *testing.T) {
	ctx := newTestContext(t)
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, make([]byte, 1024), 0o644))
	require.NoError(t, ctx.Storage.CreateVideo(context.Background(), storemodel.Video{
		ID: "v1", Title: "clip", FilePath: path, CreatedAt: time.Now(),
	}))

	reply := dispatch(ctx, newSession(), nil, []byte(`{"type":"stream_start","video_id":"v1"}`))
	assert.Equal(t, "stream_start", reply["type"])
	assert.EqualValues(t, int64(1024), reply["byte_size"])
	assert.Equal(t, 16384, reply["chunk_size"])
}

func TestDispatch_StreamChunk(t *testing.T) {
	ctx := newTestContext(t)
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))
	require.NoError(t, ctx.Storage.CreateVideo(context.Background(), storemodel.Video{
		ID: "v1", Title: "clip", FilePath: path, CreatedAt: time.Now(),
	}))

	started := make(chan uint64, 1)
	ctx.Engine.SetStateHandler(func(sc squic.StateChange) {
		if sc.State == squic.StateConnected {
			select {
			case started <- sc.ConnectionID:
			default:
			}
		}
	})

	client, err := net.DialUDP("udp", nil, ctx.Engine.Addr())
	require.NoError(t, err)
	defer client.Close()

	initPkt := squic.Packet{Flags: squic.FlagInitial, ConnectionID: 1, PacketNumber: 1}
	raw, err := squic.Serialize(initPkt)
	require.NoError(t, err)
	_, err = client.Write(raw)
	require.NoError(t, err)

	hsPkt := squic.Packet{Flags: squic.FlagHandshake, ConnectionID: 1, PacketNumber: 2}
	raw, err = squic.Serialize(hsPkt)
	require.NoError(t, err)
	_, err = client.Write(raw)
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("connection never reached StateConnected")
	}

	reply := dispatch(ctx, newSession(), nil, []byte(`{"type":"stream_chunk","video_id":"v1","connection_id":1,"stream_id":1,"offset":0,"length":10}`))
	assert.Equal(t, "stream_chunk", reply["type"])
	assert.EqualValues(t, int64(10), reply["bytes_sent"])
}

func TestDispatch_WsInit_SingleSegment(t *testing.T) {
	ctx := newTestContext(t)
	segDir := t.TempDir()
	require.NoError(t, os.WriteFile(initSegmentPath(segDir), []byte("init-bytes"), 0o644))
	require.NoError(t, os.WriteFile(segmentPath(segDir, 0), []byte("segment-0-bytes"), 0o644))

	videoPath := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(videoPath, make([]byte, 512), 0o644))
	require.NoError(t, ctx.Storage.CreateVideo(context.Background(), storemodel.Video{
		ID: "v1", Title: "clip", FilePath: videoPath, SegmentDir: segDir, CreatedAt: time.Now(),
	}))

	conn, peer := pipeConn(t)
	replies := make(chan event, 1)
	go func() {
		replies <- dispatch(ctx, newSession(), conn, []byte(`{"type":"ws_init","video_id":"v1"}`))
	}()

	frame := readBinaryFrame(t, peer)
	assert.Equal(t, buildMediaFrame(magicInit, 0, []byte("init-bytes")), frame)

	reply := <-replies
	assert.Equal(t, "ws_init", reply["type"])
	// A video whose only segment is segment_0.m4s must report one
	// segment, not zero — the fallback walk is 0-based.
	assert.Equal(t, 1, reply["total_segments"])
}

func TestDispatch_WsSegment(t *testing.T) {
	ctx := newTestContext(t)
	segDir := t.TempDir()
	require.NoError(t, os.WriteFile(segmentPath(segDir, 0), []byte("segment-0-bytes"), 0o644))

	require.NoError(t, ctx.Storage.CreateVideo(context.Background(), storemodel.Video{
		ID: "v1", Title: "clip", SegmentDir: segDir, CreatedAt: time.Now(),
	}))

	conn, peer := pipeConn(t)
	sess := newSession()
	replies := make(chan event, 1)
	go func() {
		replies <- dispatch(ctx, sess, conn, []byte(`{"type":"ws_segment","video_id":"v1","segment":0}`))
	}()

	frame := readBinaryFrame(t, peer)
	assert.Equal(t, buildMediaFrame(magicSegm, 0, []byte("segment-0-bytes")), frame)

	reply := <-replies
	assert.Equal(t, "ws_segment", reply["type"])
	assert.Equal(t, 0, reply["segment"])
	ok, fail := sess.SegmentCounters()
	assert.Equal(t, uint64(1), ok)
	assert.Equal(t, uint64(0), fail)
}
