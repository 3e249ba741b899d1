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

package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamd/streamd/internal/collab/bcrypthash"
	"github.com/streamd/streamd/internal/collab/memstore"
	"github.com/streamd/streamd/internal/storemodel"
	"github.com/streamd/streamd/internal/xerr"
)

var adduserCmd = &cobra.Command{
	Use:   "adduser <username> <password>",
	Short: "Provision a user account",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		username, password := args[0], args[1]

		// The in-memory store only demonstrates the provisioning flow in
		// this process; a durable Storage collaborator wired at startup
		// would back this with the same calls against a real database.
		store := memstore.New()
		hasher := bcrypthash.New()
		ctx := context.Background()

		if _, err := store.UserByUsername(ctx, username); err == nil {
			fmt.Fprintf(os.Stderr, "user %q already exists\n", username)
			os.Exit(1)
		} else if xerr.KindOf(err) != xerr.KindNotFound {
			fmt.Fprintf(os.Stderr, "failed to check existing user: %v\n", err)
			os.Exit(1)
		}

		hash, err := hasher.Hash(password)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
			os.Exit(1)
		}

		u := storemodel.User{
			ID:           newUserID(),
			Username:     username,
			PasswordHash: hash,
			CreatedAt:    time.Now(),
		}
		if err := store.CreateUser(ctx, u); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create user: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("created user %q (id=%s)\n", username, u.ID)
	},
	Example: "# streamd adduser alice s3cr3t",
}

func newUserID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func init() {
	rootCmd.AddCommand(adduserCmd)
}
