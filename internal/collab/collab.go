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

// Package collab declares the abstract collaborator interfaces the
// transport and control-plane core are built against: storage, session
// management, password hashing and media tooling. None of these are
// implemented as persistent services here — only reference, in-memory or
// pure-Go default implementations under the sibling packages, wired at the
// composition root in cmd.
package collab

import (
	"context"
	"time"

	"github.com/streamd/streamd/internal/storemodel"
)

// Storage is the single-writer, failure-reporting persistence
// collaborator. Returned errors are classified via package xerr.
type Storage interface {
	CreateUser(ctx context.Context, u storemodel.User) error
	UserByUsername(ctx context.Context, username string) (storemodel.User, error)
	UserByID(ctx context.Context, id string) (storemodel.User, error)
	DeleteUser(ctx context.Context, id string) error

	CreateVideo(ctx context.Context, v storemodel.Video) error
	VideoByID(ctx context.Context, id string) (storemodel.Video, error)
	DeleteVideo(ctx context.Context, id string) error
	UpdateVideoMetadata(ctx context.Context, id, title, description string) error
	UpdateVideoSegmentPath(ctx context.Context, id, segmentDir string) error
	RecentVideos(ctx context.Context, limit int) ([]storemodel.Video, error)

	UpsertWatch(ctx context.Context, w storemodel.WatchHistory) error
	GetWatch(ctx context.Context, userID, videoID string) (storemodel.WatchHistory, error)
	DeleteWatch(ctx context.Context, userID, videoID string) error
	ContinueWatching(ctx context.Context, userID string, limit int) ([]storemodel.WatchHistory, error)

	CreateSession(ctx context.Context, s storemodel.Session) error
	GetSession(ctx context.Context, id string) (storemodel.Session, error)
	DeleteSession(ctx context.Context, id string) error
	ExpireSession(ctx context.Context, id string, expiresAt time.Time) error
}

// Session is the login/session-lifecycle collaborator.
type Session interface {
	Login(ctx context.Context, username, password string) (sessionID string, err error)
	ValidateAndExtend(ctx context.Context, sessionID string, ttl time.Duration) (userID string, err error)
	Logout(ctx context.Context, sessionID string) error
}

// PasswordHasher is the opaque password hashing/verification collaborator.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// MediaTools is the external media-tooling collaborator (thumbnailing,
// duration probing, DASH segmentation).
type MediaTools interface {
	ProbeDuration(path string) (time.Duration, error)
	ExtractThumbnail(inputPath, outputPath string, at time.Duration) error
	Segment(videoID, path string) error
}
