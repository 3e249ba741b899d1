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

// Package streamer is the composition root's process orchestrator: it
// owns the squic engine, the WebSocket control context, the HTTP
// dispatcher and the TCP acceptor, and wires them to the collaborator
// implementations chosen at startup. It plays the role the teacher's
// controller package played for the sniffer/pipeline/exporter trio.
package streamer

import (
	"time"

	"github.com/pkg/errors"

	"github.com/streamd/streamd/common"
	"github.com/streamd/streamd/confengine"
	"github.com/streamd/streamd/dispatch"
	"github.com/streamd/streamd/internal/collab"
	"github.com/streamd/streamd/logger"
	"github.com/streamd/streamd/server"
	"github.com/streamd/streamd/squic"
	"github.com/streamd/streamd/wsctl"
)

// Config is the top-level "streamer" config block.
type Config struct {
	Addr        string `config:"addr"`
	UDPPort     int    `config:"udpPort"`
	MaxClients  int    `config:"maxClients"`
	MediaRoot   string `config:"mediaRoot"`
	RecvTimeout int    `config:"recvTimeoutSeconds"`
}

func (c Config) maxClients() int {
	if c.MaxClients <= 0 {
		return 256
	}
	return c.MaxClients
}

func (c Config) recvTimeout() time.Duration {
	if c.RecvTimeout <= 0 {
		return squic.DefaultRecvTimeout
	}
	return time.Duration(c.RecvTimeout) * time.Second
}

// Deps collects the collaborator implementations the composition root
// has chosen to wire in (memstore, sessionstore, bcrypthash, mediaprobe,
// or production replacements).
type Deps struct {
	Storage  collab.Storage
	Sessions collab.Session
	Hasher   collab.PasswordHasher
	Media    collab.MediaTools
}

// Streamer owns every long-lived subsystem for one process.
type Streamer struct {
	cfg      Config
	engine   *squic.Engine
	acceptor *dispatch.Acceptor
}

func setupLogger(conf *confengine.Config) error {
	var opts logger.Options
	if err := conf.UnpackChild("logger", &opts); err != nil {
		return err
	}
	if opts.Filename == "" {
		opts.Filename = "streamd.log"
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 10
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = 100
	}
	logger.SetOptions(opts)
	return nil
}

// New constructs every subsystem but does not start them yet.
func New(conf *confengine.Config, buildInfo common.BuildInfo, deps Deps) (*Streamer, error) {
	if err := setupLogger(conf); err != nil {
		return nil, errors.Wrap(err, "setup logger")
	}
	logger.Infof("streamd %s (%s, built %s) starting", buildInfo.Version, buildInfo.GitHash, buildInfo.Time)

	var cfg Config
	if conf != nil && conf.Has("streamer") {
		if err := conf.UnpackChild("streamer", &cfg); err != nil {
			return nil, errors.Wrap(err, "unpack streamer config")
		}
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8443"
	}

	engine := squic.New()
	if err := engine.Init(cfg.UDPPort); err != nil {
		return nil, errors.Wrap(err, "init transport engine")
	}
	engine.SetRecvTimeout(cfg.recvTimeout())

	srv, err := server.New(conf, server.Deps{
		Storage: deps.Storage, Sessions: deps.Sessions, Hasher: deps.Hasher, Media: deps.Media,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build http server")
	}

	wsCtx := &wsctl.Context{
		Engine: engine, Storage: deps.Storage, Sessions: deps.Sessions,
		Hasher: deps.Hasher, Media: deps.Media, MediaRoot: cfg.MediaRoot,
	}

	acceptor, err := dispatch.New(cfg.Addr, cfg.maxClients(), srv, wsCtx)
	if err != nil {
		return nil, errors.Wrap(err, "bind tcp listener")
	}

	return &Streamer{cfg: cfg, engine: engine, acceptor: acceptor}, nil
}

// Start spawns the transport engine's receive loop and the TCP accept
// loop, returning once both are running; Serve itself runs in the
// background since the acceptor blocks until Stop is called.
func (s *Streamer) Start() error {
	if err := s.engine.Start(); err != nil {
		return errors.Wrap(err, "start transport engine")
	}
	go func() {
		if err := s.acceptor.Serve(); err != nil {
			logger.Warnf("streamer: accept loop exited: %v", err)
		}
	}()
	return nil
}

// Stop drains in-flight connections and tears down the transport engine.
func (s *Streamer) Stop() {
	if err := s.acceptor.Shutdown(); err != nil {
		logger.Warnf("streamer: shutdown acceptor: %v", err)
	}
	if err := s.engine.Destroy(); err != nil {
		logger.Warnf("streamer: destroy engine: %v", err)
	}
}

// Metrics returns a snapshot of the transport engine's counters.
func (s *Streamer) Metrics() squic.Metrics {
	return s.engine.GetMetrics()
}
