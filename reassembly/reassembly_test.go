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

package reassembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnData_InOrder(t *testing.T) {
	set := NewSet()

	start, emitted, err := set.OnData(1, 0, []byte("hello "))
	require.NoError(t, err)
	assert.EqualValues(t, 0, start)
	assert.Equal(t, "hello ", string(emitted))

	start, emitted, err = set.OnData(1, 6, []byte("world"))
	require.NoError(t, err)
	assert.EqualValues(t, 6, start)
	assert.Equal(t, "world", string(emitted))
}

func TestOnData_ReorderedSegments(t *testing.T) {
	// S2: segments arrive out of order; nothing is emitted until the gap
	// at offset 0 is filled, then the whole contiguous run comes out.
	set := NewSet()

	start, emitted, err := set.OnData(1, 6, []byte("world"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, start)
	assert.Empty(t, emitted)

	start, emitted, err = set.OnData(1, 0, []byte("hello "))
	require.NoError(t, err)
	assert.EqualValues(t, 0, start)
	assert.Equal(t, "hello world", string(emitted))
}

func TestOnData_OverlappingSegments(t *testing.T) {
	set := NewSet()

	_, _, err := set.OnData(1, 0, []byte("hello"))
	require.NoError(t, err)

	// covers [3,11) and overlaps the consumed bytes [3,5); only the new
	// tail beyond the cursor counts.
	_, emitted, err := set.OnData(1, 3, []byte("lo world"))
	require.NoError(t, err)
	assert.Equal(t, " world", string(emitted))
}

func TestOnData_DuplicateSegmentIsNoop(t *testing.T) {
	set := NewSet()

	_, _, err := set.OnData(1, 0, []byte("abc"))
	require.NoError(t, err)

	start, emitted, err := set.OnData(1, 0, []byte("abc"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, start)
	assert.Empty(t, emitted)
}

func TestOnData_EmptySegmentRejected(t *testing.T) {
	set := NewSet()
	_, _, err := set.OnData(1, 0, nil)
	assert.Error(t, err)
}

func TestOnData_StreamCapacityBound(t *testing.T) {
	set := NewSet()
	for i := uint32(0); i < MaxStreams; i++ {
		_, _, err := set.OnData(i, 0, []byte("x"))
		require.NoError(t, err)
	}
	_, _, err := set.OnData(MaxStreams, 0, []byte("x"))
	assert.Error(t, err)
	assert.Equal(t, MaxStreams, set.StreamCount())
}

func TestOnData_BoundedOutputBuffer(t *testing.T) {
	set := NewSet()
	big := make([]byte, MaxEmit+100)
	for i := range big {
		big[i] = byte('a' + i%26)
	}

	_, emitted, err := set.OnData(1, 0, big)
	require.NoError(t, err)
	assert.Len(t, emitted, MaxEmit)

	// the remaining 100 bytes stay buffered as a trimmed head segment. A
	// follow-up call with an empty segment is rejected whatever the
	// buffered state is.
	start, emitted2, err := set.OnData(1, 0, nil)
	assert.Error(t, err) // empty segment is rejected regardless of state
	_ = start
	_ = emitted2
}

func TestReset(t *testing.T) {
	set := NewSet()
	_, _, err := set.OnData(1, 0, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 1, set.StreamCount())

	set.Reset(1)
	assert.Equal(t, 0, set.StreamCount())

	// after reset, the stream starts fresh from offset 0 again.
	start, emitted, err := set.OnData(1, 0, []byte("xyz"))
	require.NoError(t, err)
	assert.EqualValues(t, 0, start)
	assert.Equal(t, "xyz", string(emitted))
}
