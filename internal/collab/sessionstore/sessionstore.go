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

// Package sessionstore is the default Session collaborator, backed by a
// collab.Storage and a collab.PasswordHasher. Grounded on
// original_source/src/auth/session.c's login/validate/logout shape.
package sessionstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/streamd/streamd/internal/collab"
	"github.com/streamd/streamd/internal/storemodel"
	"github.com/streamd/streamd/internal/xerr"
)

type Sessions struct {
	storage collab.Storage
	hasher  collab.PasswordHasher
	ttl     time.Duration
}

var _ collab.Session = (*Sessions)(nil)

// New returns a Session collaborator with the given default TTL, used when
// a session is first created (ValidateAndExtend applies its own ttl
// argument on subsequent calls).
func New(storage collab.Storage, hasher collab.PasswordHasher, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Sessions{storage: storage, hasher: hasher, ttl: ttl}
}

func (s *Sessions) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.storage.UserByUsername(ctx, username)
	if err != nil {
		return "", xerr.Unauthorized("invalid username or password")
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return "", xerr.Unauthorized("invalid username or password")
	}

	sess := storemodel.Session{
		ID:        uuid.New().String(),
		UserID:    u.ID,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	if err := s.storage.CreateSession(ctx, sess); err != nil {
		return "", err
	}
	return sess.ID, nil
}

func (s *Sessions) ValidateAndExtend(ctx context.Context, sessionID string, ttl time.Duration) (string, error) {
	sess, err := s.storage.GetSession(ctx, sessionID)
	if err != nil {
		return "", xerr.Unauthorized("session invalid or expired")
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	if err := s.storage.ExpireSession(ctx, sessionID, time.Now().Add(ttl)); err != nil {
		return "", err
	}
	return sess.UserID, nil
}

func (s *Sessions) Logout(ctx context.Context, sessionID string) error {
	return s.storage.DeleteSession(ctx, sessionID)
}
