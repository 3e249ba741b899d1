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

// Package mediaprobe is the default MediaTools collaborator. Thumbnail
// extraction and segmentation are genuinely external-tool concerns
// (ffmpeg/shaka-packager in the original_source/src/utils/thumbnail.c
// sense) and are non-goals for the core, so this default implementation
// documents that a production deployment supplies a real one; ProbeDuration
// alone gets a pure-Go heuristic fallback so demos and tests can run
// without external binaries.
package mediaprobe

import (
	"os"
	"time"

	"github.com/streamd/streamd/internal/collab"
	"github.com/streamd/streamd/internal/xerr"
)

// Default is a no-op MediaTools collaborator: ProbeDuration falls back to a
// fixed estimate derived from file size, ExtractThumbnail and Segment
// report that no tool is configured.
type Default struct {
	// FallbackBitrateBytesPerSec is used to estimate duration from file
	// size when no real probe is wired.
	FallbackBitrateBytesPerSec int64
}

var _ collab.MediaTools = Default{}

func New() Default {
	return Default{FallbackBitrateBytesPerSec: 375_000} // ~3 Mbps
}

func (d Default) ProbeDuration(path string) (time.Duration, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, xerr.Wrap(xerr.KindIO, err, "stat media file")
	}
	rate := d.FallbackBitrateBytesPerSec
	if rate <= 0 {
		rate = 375_000
	}
	seconds := float64(fi.Size()) / float64(rate)
	return time.Duration(seconds * float64(time.Second)), nil
}

func (d Default) ExtractThumbnail(_, _ string, _ time.Duration) error {
	return xerr.Misuse("no thumbnail tool configured")
}

func (d Default) Segment(_, _ string) error {
	return xerr.Misuse("no segmentation tool configured")
}
