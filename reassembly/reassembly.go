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

// Package reassembly turns arbitrary, possibly out-of-order and
// overlapping (offset, bytes) segments on a stream into the longest
// contiguous prefix not yet consumed. It generalizes the chunked-writer
// idiom in the teacher's connstream package (accept a payload, feed it to
// a per-stream accumulator) into a full offset-ordered reassembler, since
// squic streams — unlike a passively-observed TCP stream — may receive
// segments genuinely out of order over UDP.
package reassembly

import (
	"sort"

	"github.com/streamd/streamd/internal/bufbytes"
	"github.com/streamd/streamd/internal/xerr"
)

const (
	// MaxStreams bounds how many distinct stream ids one Set will track.
	MaxStreams = 16

	// MaxEmit bounds how many bytes a single OnData call returns, matching
	// the "output buffer has bounded capacity" rule in spec §4.1.
	MaxEmit = 64 * 1024
)

// segment is one not-yet-delivered (offset, bytes) record.
type segment struct {
	offset uint64
	data   []byte
}

func (s segment) end() uint64 { return s.offset + uint64(len(s.data)) }

// stream is the per-stream reassembler state.
type stream struct {
	nextRead uint64
	segments []segment
}

// insert performs an ordered insert by offset; duplicates/overlaps are
// resolved lazily at emission time, not here.
func (s *stream) insert(off uint64, data []byte) {
	i := sort.Search(len(s.segments), func(i int) bool { return s.segments[i].offset >= off })
	s.segments = append(s.segments, segment{})
	copy(s.segments[i+1:], s.segments[i:])
	s.segments[i] = segment{offset: off, data: data}
}

// emit walks the head of segments, advancing nextRead and writing
// contiguous bytes into out until either the head is exhausted, a gap
// remains, or out is full.
func (s *stream) emit(out *bufbytes.Bytes) {
	for len(s.segments) > 0 {
		head := s.segments[0]
		if head.offset > s.nextRead {
			return // gap: nothing more to emit yet
		}

		start := uint64(0)
		if s.nextRead > head.offset {
			start = s.nextRead - head.offset
		}
		if start >= uint64(len(head.data)) {
			// fully duplicated, drop it
			s.segments = s.segments[1:]
			continue
		}

		remaining := head.data[start:]
		n := out.Write(remaining)
		s.nextRead += uint64(n)

		if n == len(remaining) {
			s.segments = s.segments[1:]
		} else {
			// output buffer filled mid-segment; trim the head and stop
			s.segments[0] = segment{offset: head.offset + uint64(start) + uint64(n), data: remaining[n:]}
			return
		}

		if out.Full() {
			return
		}
	}
}

// Set is the per-connection collection of per-stream reassemblers, bounded
// to MaxStreams distinct stream ids.
type Set struct {
	streams map[uint32]*stream
}

func NewSet() *Set {
	return &Set{streams: make(map[uint32]*stream)}
}

// OnData feeds one (offset, bytes) segment for streamID and returns the
// stream's read cursor as it stood before this call, plus the possibly
// empty prefix that became contiguous as a result.
func (s *Set) OnData(streamID uint32, offset uint64, data []byte) (startingOffset uint64, emitted []byte, err error) {
	if len(data) == 0 {
		return 0, nil, xerr.Misuse("reassembly: empty segment")
	}

	st, ok := s.streams[streamID]
	if !ok {
		if len(s.streams) >= MaxStreams {
			return 0, nil, xerr.Misuse("reassembly: stream capacity (%d) exhausted", MaxStreams)
		}
		st = &stream{}
		s.streams[streamID] = st
	}

	startingOffset = st.nextRead

	// A segment entirely behind the read cursor is a no-op: it is not
	// inserted and nothing is emitted by this call.
	if offset+uint64(len(data)) <= st.nextRead {
		return startingOffset, nil, nil
	}

	st.insert(offset, data)

	out := bufbytes.New(MaxEmit)
	st.emit(out)
	return startingOffset, out.Bytes(), nil
}

// Reset discards buffered segments for streamID and rewinds its cursor.
func (s *Set) Reset(streamID uint32) {
	delete(s.streams, streamID)
}

// StreamCount reports how many distinct streams currently have state,
// mostly useful for tests and metrics.
func (s *Set) StreamCount() int {
	return len(s.streams)
}
