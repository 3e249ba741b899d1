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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamd/streamd/common"
	"github.com/streamd/streamd/confengine"
	"github.com/streamd/streamd/internal/collab/bcrypthash"
	"github.com/streamd/streamd/internal/collab/mediaprobe"
	"github.com/streamd/streamd/internal/collab/memstore"
	"github.com/streamd/streamd/internal/collab/sessionstore"
	"github.com/streamd/streamd/internal/sigs"
	"github.com/streamd/streamd/logger"
	"github.com/streamd/streamd/streamer"
)

const defaultSessionTTL = 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the media streaming server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		store := memstore.New()
		hasher := bcrypthash.New()
		deps := streamer.Deps{
			Storage:  store,
			Sessions: sessionstore.New(store, hasher, defaultSessionTTL),
			Hasher:   hasher,
			Media:    mediaprobe.New(),
		}

		s, err := streamer.New(cfg, common.GetBuildInfo(), deps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create streamer: %v\n", err)
			os.Exit(1)
		}
		if err := s.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start streamer: %v\n", err)
			os.Exit(1)
		}

		var reloadTotal int
		for {
			select {
			case <-sigs.Terminate():
				s.Stop()
				return

			case <-sigs.Reload():
				reloadTotal++
				// Config reload is not wired: the transport engine and TCP
				// listener are bound at New() time. Restart the process to
				// pick up config changes.
				logger.Warnf("reload signal received (count=%d); restart the process to apply config changes", reloadTotal)
			}
		}
	},
	Example: "# streamd serve --config streamd.yaml",
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
