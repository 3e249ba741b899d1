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

// Package storemodel declares the row shapes the Storage collaborator
// operates over. Persistence itself is out of scope for this module; these
// types exist so the collaborator interfaces in package collab have
// something concrete to carry.
package storemodel

import "time"

// User is a registered account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Video is a single piece of media available for streaming.
type Video struct {
	ID              string
	Title           string
	Description     string
	OwnerID         string
	FilePath        string
	SegmentDir      string
	ThumbnailPath   string
	DurationSeconds float64
	CreatedAt       time.Time
}

// WatchHistory records how far a user got into a video.
type WatchHistory struct {
	UserID          string
	VideoID         string
	PositionSeconds float64
	UpdatedAt       time.Time
}

// Session is a server-side authenticated session, keyed by an opaque id.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}
