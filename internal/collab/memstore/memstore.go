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

// Package memstore is the default in-memory Storage collaborator. It is a
// reference implementation for demos, the CLI and tests — the core never
// depends on it directly, only on collab.Storage.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/streamd/streamd/internal/collab"
	"github.com/streamd/streamd/internal/storemodel"
	"github.com/streamd/streamd/internal/xerr"
)

type watchKey struct {
	userID, videoID string
}

// Store is a single-process, mutex-guarded Storage collaborator.
type Store struct {
	mu       sync.Mutex
	users    map[string]storemodel.User
	byName   map[string]string // username -> id
	videos   map[string]storemodel.Video
	watches  map[watchKey]storemodel.WatchHistory
	sessions map[string]storemodel.Session
}

var _ collab.Storage = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]storemodel.User),
		byName:   make(map[string]string),
		videos:   make(map[string]storemodel.Video),
		watches:  make(map[watchKey]storemodel.WatchHistory),
		sessions: make(map[string]storemodel.Session),
	}
}

func (s *Store) CreateUser(_ context.Context, u storemodel.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[u.Username]; ok {
		return xerr.New(xerr.KindMisuse, "user %q already exists", u.Username)
	}
	s.users[u.ID] = u
	s.byName[u.Username] = u.ID
	return nil
}

func (s *Store) UserByUsername(_ context.Context, username string) (storemodel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byName[username]
	if !ok {
		return storemodel.User{}, xerr.NotFound("user %q not found", username)
	}
	return s.users[id], nil
}

func (s *Store) UserByID(_ context.Context, id string) (storemodel.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return storemodel.User{}, xerr.NotFound("user %q not found", id)
	}
	return u, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return xerr.NotFound("user %q not found", id)
	}
	delete(s.users, id)
	delete(s.byName, u.Username)
	return nil
}

func (s *Store) CreateVideo(_ context.Context, v storemodel.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[v.ID] = v
	return nil
}

func (s *Store) VideoByID(_ context.Context, id string) (storemodel.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return storemodel.Video{}, xerr.NotFound("video %q not found", id)
	}
	return v, nil
}

func (s *Store) DeleteVideo(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[id]; !ok {
		return xerr.NotFound("video %q not found", id)
	}
	delete(s.videos, id)
	return nil
}

func (s *Store) UpdateVideoMetadata(_ context.Context, id, title, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return xerr.NotFound("video %q not found", id)
	}
	v.Title, v.Description = title, description
	s.videos[id] = v
	return nil
}

func (s *Store) UpdateVideoSegmentPath(_ context.Context, id, segmentDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return xerr.NotFound("video %q not found", id)
	}
	v.SegmentDir = segmentDir
	s.videos[id] = v
	return nil
}

func (s *Store) RecentVideos(_ context.Context, limit int) ([]storemodel.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storemodel.Video, 0, len(s.videos))
	for _, v := range s.videos {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpsertWatch(_ context.Context, w storemodel.WatchHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watches[watchKey{w.UserID, w.VideoID}] = w
	return nil
}

func (s *Store) GetWatch(_ context.Context, userID, videoID string) (storemodel.WatchHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[watchKey{userID, videoID}]
	if !ok {
		return storemodel.WatchHistory{}, xerr.NotFound("watch history not found")
	}
	return w, nil
}

func (s *Store) DeleteWatch(_ context.Context, userID, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watches, watchKey{userID, videoID})
	return nil
}

func (s *Store) ContinueWatching(_ context.Context, userID string, limit int) ([]storemodel.WatchHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storemodel.WatchHistory, 0)
	for k, w := range s.watches {
		if k.userID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateSession(_ context.Context, sess storemodel.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (storemodel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return storemodel.Session{}, xerr.NotFound("session %q not found", id)
	}
	if time.Now().After(sess.ExpiresAt) {
		delete(s.sessions, id)
		return storemodel.Session{}, xerr.NotFound("session %q expired", id)
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *Store) ExpireSession(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return xerr.NotFound("session %q not found", id)
	}
	sess.ExpiresAt = expiresAt
	s.sessions[id] = sess
	return nil
}
