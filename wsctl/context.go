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
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/streamd/streamd/internal/collab"
	"github.com/streamd/streamd/squic"
)

// ChunkSendRate bounds how many ≤16KiB DATA packets stream_chunk may push
// into the transport per second, per connection, so one greedy client
// cannot starve the engine's single lock.
const ChunkSendRate = 200

// Context is the process-wide control-plane context shared by every
// command loop: one squic engine handle and the storage/session/media
// collaborators. There is exactly one of these per process (spec §9,
// "no global mutable state" — constructed explicitly, passed down).
type Context struct {
	Engine   *squic.Engine
	Storage  collab.Storage
	Sessions collab.Session
	Hasher   collab.PasswordHasher
	Media    collab.MediaTools

	// MediaRoot is the filesystem root under which per-video segment
	// directories and raw files live.
	MediaRoot string
}

// Session is per-WebSocket-connection state: the cached authenticated
// user id (if any) and the monotonic packet-number counter shared by
// quic_send and stream_chunk on this connection.
type Session struct {
	mu             sync.Mutex
	packetNum      uint32
	UserID         string
	Authenticated  bool
	segOK, segFail uint64
	limiter        *rate.Limiter
}

func newSession() *Session {
	return &Session{limiter: rate.NewLimiter(rate.Limit(ChunkSendRate), ChunkSendRate)}
}

// NextPacketNumber allocates the next packet number for this session.
func (s *Session) NextPacketNumber() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packetNum++
	return s.packetNum
}

func (s *Session) recordSegmentOK()   { atomic.AddUint64(&s.segOK, 1) }
func (s *Session) recordSegmentFail() { atomic.AddUint64(&s.segFail, 1) }

// SegmentCounters returns the ws_segment ok/fail counters for this
// session.
func (s *Session) SegmentCounters() (ok, fail uint64) {
	return atomic.LoadUint64(&s.segOK), atomic.LoadUint64(&s.segFail)
}
