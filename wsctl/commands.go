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
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cast"

	"github.com/streamd/streamd/internal/authctx"
	"github.com/streamd/streamd/internal/storemodel"
	"github.com/streamd/streamd/internal/xerr"
	"github.com/streamd/streamd/logger"
	"github.com/streamd/streamd/squic"
)

const maxPayloadHexLen = squic.MaxPayload * 2

// event is the generic JSON reply shape: status frames, error frames and
// data frames all share {type,status,message,...extra}.
type event map[string]any

func okEvent(typ string, extra map[string]any) event {
	e := event{"type": typ, "status": "ok"}
	for k, v := range extra {
		e[k] = v
	}
	return e
}

func errEvent(status, message string) event {
	return event{"type": "error", "status": status, "message": message}
}

// Serve runs the handshake-complete command loop on conn until the client
// closes or an I/O failure occurs, always closing the underlying stream
// on exit.
func Serve(ctx *Context, conn *Conn, headers http.Header) {
	defer conn.Close()

	sess := newSession()
	if sid, ok := authctx.ExtractSessionID(headers); ok {
		if uid, err := ctx.Sessions.ValidateAndExtend(context.Background(), sid, 0); err == nil {
			sess.UserID, sess.Authenticated = uid, true
		}
	}

	if err := conn.WriteText(mustJSON(event{"type": "ready", "status": "ok"})); err != nil {
		return
	}

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}

		switch frame.Opcode {
		case OpText:
			reply := dispatch(ctx, sess, conn, frame.Payload)
			if conn.WriteText(mustJSON(reply)) != nil {
				return
			}
		case OpBinary, OpContinuation:
			if conn.WriteBinary(frame.Payload) != nil {
				return
			}
		case OpPing:
			if conn.WritePong(frame.Payload) != nil {
				return
			}
		case OpClose:
			_ = conn.WriteClose(frame.Payload)
			return
		default:
			return
		}
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("wsctl: marshal event: %v", err)
		return []byte(`{"type":"error","status":"io_error","message":"internal encoding error"}`)
	}
	return b
}

// dispatch decodes one text frame as a JSON command and routes it. The
// two media-delivering commands (ws_init, ws_segment) write a binary
// frame themselves before returning their text reply.
func dispatch(ctx *Context, sess *Session, conn *Conn, payload []byte) event {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return errEvent("protocol_error", "invalid JSON command")
	}

	typ, _ := raw["type"].(string)
	switch typ {
	case "ping":
		return okEvent("pong", nil)
	case "quic_send":
		return cmdQuicSend(ctx, sess, raw)
	case "list_videos":
		return cmdListVideos(ctx)
	case "list_continue":
		return cmdListContinue(ctx, sess)
	case "video_detail":
		return cmdVideoDetail(ctx, raw)
	case "stream_start":
		return cmdStreamStart(ctx, raw)
	case "stream_chunk":
		return cmdStreamChunk(ctx, sess, raw)
	case "watch_get":
		return cmdWatchGet(ctx, sess, raw)
	case "watch_update":
		return cmdWatchUpdate(ctx, sess, raw)
	case "ws_init":
		return cmdWsInit(ctx, conn, raw)
	case "ws_segment":
		return cmdWsSegment(ctx, sess, conn, raw)
	default:
		return errEvent("protocol_error", "unknown command type")
	}
}

func requireAuth(sess *Session) (string, error) {
	if !sess.Authenticated || sess.UserID == "" {
		return "", xerr.Unauthorized("authentication required")
	}
	return sess.UserID, nil
}

func cmdQuicSend(ctx *Context, sess *Session, raw map[string]any) event {
	connID, err := cast.ToUint64E(raw["connection_id"])
	if err != nil {
		return errEvent("misuse", "connection_id must be an integer")
	}

	streamID := uint32(1)
	if v, ok := raw["stream_id"]; ok {
		if streamID, err = cast.ToUint32E(v); err != nil {
			return errEvent("misuse", "stream_id must be an integer")
		}
	}

	offset := uint32(0)
	if v, ok := raw["offset"]; ok {
		if offset, err = cast.ToUint32E(v); err != nil {
			return errEvent("misuse", "offset must be an integer")
		}
	}

	payloadHex, _ := raw["payload_hex"].(string)
	if len(payloadHex) > maxPayloadHexLen {
		return errEvent("misuse", "payload_hex exceeds maximum length")
	}
	payload, err := hex.DecodeString(payloadHex)
	if err != nil {
		return errEvent("misuse", "payload_hex is not valid hex")
	}

	state, err := ctx.Engine.GetConnectionState(connID)
	if err != nil {
		return errEvent("not_found", "unknown connection")
	}
	if state != squic.StateConnected {
		return errEvent("protocol_error", "connection is not connected")
	}

	pkt := squic.Packet{
		Flags: squic.FlagData, ConnectionID: connID, PacketNumber: sess.NextPacketNumber(),
		StreamID: streamID, Offset: offset, Payload: payload,
	}
	if err := ctx.Engine.SendToConnection(pkt); err != nil {
		return errEvent("io_error", err.Error())
	}
	return okEvent("quic_send", nil)
}

func cmdListVideos(ctx *Context) event {
	videos, err := ctx.Storage.RecentVideos(context.Background(), 20)
	if err != nil {
		return errEvent("io_error", err.Error())
	}
	return okEvent("videos", map[string]any{"items": videos})
}

func cmdListContinue(ctx *Context, sess *Session) event {
	uid, err := requireAuth(sess)
	if err != nil {
		return errEvent("unauthorized", err.Error())
	}
	items, err := ctx.Storage.ContinueWatching(context.Background(), uid, 10)
	if err != nil {
		return errEvent("io_error", err.Error())
	}
	return okEvent("list_continue", map[string]any{"items": items})
}

func cmdVideoDetail(ctx *Context, raw map[string]any) event {
	videoID, _ := cast.ToStringE(raw["video_id"])
	if videoID == "" {
		return errEvent("misuse", "video_id is required")
	}
	v, err := ctx.Storage.VideoByID(context.Background(), videoID)
	if err != nil {
		return errEvent("not_found", "video not found")
	}
	return okEvent("video_detail", map[string]any{"video": v})
}

func cmdStreamStart(ctx *Context, raw map[string]any) event {
	videoID, _ := cast.ToStringE(raw["video_id"])
	v, err := ctx.Storage.VideoByID(context.Background(), videoID)
	if err != nil {
		return errEvent("not_found", "video not found")
	}

	chunkLength, _ := cast.ToIntE(raw["chunk_length"])
	if chunkLength <= 0 {
		chunkLength = 16384
	}

	info, err := os.Stat(v.FilePath)
	if err != nil {
		return errEvent("io_error", "cannot stat video file")
	}

	duration, _ := ctx.Media.ProbeDuration(v.FilePath)
	return okEvent("stream_start", map[string]any{
		"byte_size":  info.Size(),
		"chunk_size": chunkLength, // Design Note i: reports the requested field verbatim, unclamped.
		"duration_s": duration.Seconds(),
	})
}

func cmdStreamChunk(ctx *Context, sess *Session, raw map[string]any) event {
	videoID, _ := cast.ToStringE(raw["video_id"])
	v, err := ctx.Storage.VideoByID(context.Background(), videoID)
	if err != nil {
		return errEvent("not_found", "video not found")
	}

	connID, err := cast.ToUint64E(raw["connection_id"])
	if err != nil {
		return errEvent("misuse", "connection_id must be an integer")
	}
	streamID, err := cast.ToUint32E(raw["stream_id"])
	if err != nil {
		return errEvent("misuse", "stream_id must be an integer")
	}
	offset, err := cast.ToInt64E(raw["offset"])
	if err != nil {
		return errEvent("misuse", "offset must be an integer")
	}
	length, err := cast.ToInt64E(raw["length"])
	if err != nil || length <= 0 {
		return errEvent("misuse", "length must be a positive integer")
	}

	if _, err := ctx.Engine.GetConnectionState(connID); err != nil {
		return errEvent("not_found", "unknown connection")
	}

	f, err := os.Open(v.FilePath)
	if err != nil {
		return errEvent("io_error", "cannot open video file")
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return errEvent("io_error", "cannot seek video file")
	}

	buf := make([]byte, squic.MaxPayload)
	var sent int64
	pos := uint32(offset)
	for sent < length {
		want := squic.MaxPayload
		if remaining := length - sent; remaining < int64(want) {
			want = int(remaining)
		}
		n, rerr := f.Read(buf[:want])
		if n > 0 {
			_ = sess.limiter.WaitN(context.Background(), 1)
			pkt := squic.Packet{
				Flags: squic.FlagData, ConnectionID: connID, PacketNumber: sess.NextPacketNumber(),
				StreamID: streamID, Offset: pos, Payload: append([]byte(nil), buf[:n]...),
			}
			if err := ctx.Engine.SendToConnection(pkt); err != nil {
				return errEvent("io_error", err.Error())
			}
			sent += int64(n)
			pos += uint32(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return errEvent("io_error", "read error")
		}
	}
	return okEvent("stream_chunk", map[string]any{"bytes_sent": sent})
}

func cmdWatchGet(ctx *Context, sess *Session, raw map[string]any) event {
	uid, err := requireAuth(sess)
	if err != nil {
		return errEvent("unauthorized", err.Error())
	}
	videoID, _ := cast.ToStringE(raw["video_id"])
	w, err := ctx.Storage.GetWatch(context.Background(), uid, videoID)
	if err != nil {
		return errEvent("not_found", "no watch history")
	}
	return okEvent("watch_get", map[string]any{"position": w.PositionSeconds})
}

func cmdWatchUpdate(ctx *Context, sess *Session, raw map[string]any) event {
	uid, err := requireAuth(sess)
	if err != nil {
		return errEvent("unauthorized", err.Error())
	}
	videoID, _ := cast.ToStringE(raw["video_id"])
	position, err := cast.ToFloat64E(raw["position"])
	if err != nil {
		return errEvent("misuse", "position must be numeric")
	}

	w := storemodel.WatchHistory{UserID: uid, VideoID: videoID, PositionSeconds: position, UpdatedAt: time.Now()}
	if err := ctx.Storage.UpsertWatch(context.Background(), w); err != nil {
		return errEvent("io_error", err.Error())
	}
	return okEvent("watch_update", nil)
}

func cmdWsInit(ctx *Context, conn *Conn, raw map[string]any) event {
	videoID, _ := cast.ToStringE(raw["video_id"])
	v, err := ctx.Storage.VideoByID(context.Background(), videoID)
	if err != nil {
		return errEvent("not_found", "video not found")
	}
	if v.SegmentDir == "" {
		return errEvent("io_error", "video has not been segmented")
	}

	data, err := readFile(initSegmentPath(v.SegmentDir))
	if err != nil {
		return errEvent("io_error", "init segment unavailable")
	}
	if err := conn.WriteBinary(buildMediaFrame(magicInit, 0, data)); err != nil {
		return errEvent("io_error", "write init frame failed")
	}

	duration, _ := ctx.Media.ProbeDuration(v.FilePath)
	return okEvent("ws_init", map[string]any{
		"duration_s":     duration.Seconds(),
		"total_segments": countSegments(v.SegmentDir),
	})
}

func cmdWsSegment(ctx *Context, sess *Session, conn *Conn, raw map[string]any) event {
	videoID, _ := cast.ToStringE(raw["video_id"])
	segIdx, err := cast.ToIntE(raw["segment"])
	if err != nil || segIdx < 0 {
		return errEvent("misuse", "segment must be a non-negative integer")
	}

	v, err := ctx.Storage.VideoByID(context.Background(), videoID)
	if err != nil {
		sess.recordSegmentFail()
		return errEvent("not_found", "video not found")
	}

	data, err := readFile(segmentPath(v.SegmentDir, segIdx))
	if err != nil {
		// one automatic retry on open failure, per spec §4.3.
		data, err = readFile(segmentPath(v.SegmentDir, segIdx))
	}
	if err != nil {
		sess.recordSegmentFail()
		return errEvent("io_error", "segment unavailable")
	}

	if err := conn.WriteBinary(buildMediaFrame(magicSegm, uint32(segIdx), data)); err != nil {
		sess.recordSegmentFail()
		return errEvent("io_error", "write segment frame failed")
	}
	sess.recordSegmentOK()
	ok, fail := sess.SegmentCounters()
	return okEvent("ws_segment", map[string]any{"segment": segIdx, "ok_count": ok, "fail_count": fail})
}
