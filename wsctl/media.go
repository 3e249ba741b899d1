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
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/streamd/streamd/internal/xerr"
)

const (
	magicInit = "INIT"
	magicSegm = "SEGM"
)

// buildMediaFrame prepends the 8-byte magic+index header used by
// ws_init/ws_segment (spec §6.2) to a raw segment's bytes.
func buildMediaFrame(magic string, index uint32, data []byte) []byte {
	out := make([]byte, 8+len(data))
	copy(out[0:4], magic)
	binary.BigEndian.PutUint32(out[4:8], index)
	copy(out[8:], data)
	return out
}

func initSegmentPath(segmentDir string) string {
	return filepath.Join(segmentDir, "init.mp4")
}

func segmentPath(segmentDir string, index int) string {
	return filepath.Join(segmentDir, fmt.Sprintf("segment_%d.m4s", index))
}

// countSegments walks segment_0.m4s, segment_1.m4s, … and stops at the
// first missing index — the fallback used when no sidecar manifest
// records the true count (Design Note ii: preserve "stop at first gap"
// rather than assume it is exhaustive).
func countSegments(segmentDir string) int {
	count := 0
	for i := 0; ; i++ {
		if _, err := os.Stat(segmentPath(segmentDir, i)); err != nil {
			break
		}
		count++
	}
	return count
}

// readFile reads a whole media file, wrapping any error as io_error.
func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindIO, err, "wsctl: read media file "+path)
	}
	return b, nil
}
