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

// Package bcrypthash is the default PasswordHasher collaborator, wrapping
// golang.org/x/crypto/bcrypt. Wired only at the composition root (cmd) so
// the core packages stay collaborator-agnostic.
package bcrypthash

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/streamd/streamd/internal/collab"
)

type Hasher struct {
	cost int
}

var _ collab.PasswordHasher = Hasher{}

func New() Hasher {
	return Hasher{cost: bcrypt.DefaultCost}
}

func (h Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h Hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
