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

// Package server is the HTTP dispatcher: the fixed set of routes in spec
// §6.3 (login/signup/logout/upload/admin/static), plus /metrics and
// /debug/pprof/*. It does not own a TCP listener itself — package dispatch
// feeds it requests built off a connection it has already decided is not a
// WebSocket upgrade, the way packetd's mux.Router is fed by server.Server
// but without that type owning net.Listen (dispatch does, since it must
// also inspect the same bytes for the RFC6455 handshake).
package server

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamd/streamd/confengine"
	"github.com/streamd/streamd/internal/collab"
)

type Config struct {
	Pprof     bool   `config:"pprof"`
	Metrics   bool   `config:"metrics"`
	StaticDir string `config:"staticDir"`
}

// Deps are the out-of-scope collaborators the HTTP handlers call through.
type Deps struct {
	Storage  collab.Storage
	Sessions collab.Session
	Hasher   collab.PasswordHasher
	Media    collab.MediaTools
}

type Server struct {
	config Config
	deps   Deps
	router *mux.Router
}

// New builds the dispatcher's route table. conf may be nil, in which case
// defaults apply (pprof/metrics on, no static dir).
func New(conf *confengine.Config, deps Deps) (*Server, error) {
	var config Config
	if conf != nil && conf.Has("server") {
		if err := conf.UnpackChild("server", &config); err != nil {
			return nil, err
		}
	} else {
		config.Pprof, config.Metrics = true, true
	}

	s := &Server{config: config, deps: deps, router: mux.NewRouter()}
	s.registerRoutes()
	if config.Pprof {
		s.registerPprofRoutes()
	}
	if config.Metrics {
		s.RegisterGetRoute("/metrics", promhttp.Handler().ServeHTTP)
	}
	return s, nil
}

func (s *Server) registerRoutes() {
	s.RegisterPostRoute("/login", s.handleLogin)
	s.RegisterPostRoute("/signup", s.handleSignup)
	s.RegisterPostRoute("/logout", s.handleLogout)
	s.RegisterPostRoute("/upload", s.handleUpload)
	s.RegisterGetRoute("/admin/video/list", s.handleAdminVideoList)
	s.RegisterPostRoute("/admin/video/update", s.handleAdminVideoUpdate)
	s.RegisterPostRoute("/admin/video/delete", s.handleAdminVideoDelete)

	if s.config.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

func (s *Server) RegisterGetRoute(path string, f http.HandlerFunc) {
	s.router.Methods(http.MethodGet).Path(path).HandlerFunc(f)
}

func (s *Server) RegisterPostRoute(path string, f http.HandlerFunc) {
	s.router.Methods(http.MethodPost).Path(path).HandlerFunc(f)
}

func (s *Server) registerPprofRoutes() {
	s.RegisterGetRoute("/debug/pprof/cmdline", pprof.Cmdline)
	s.RegisterGetRoute("/debug/pprof/profile", pprof.Profile)
	s.RegisterGetRoute("/debug/pprof/symbol", pprof.Symbol)
	s.RegisterGetRoute("/debug/pprof/trace", pprof.Trace)
	s.RegisterGetRoute("/debug/pprof/{other}", pprof.Index)
}

// ServeHTTP reflects CORS headers from Origin (spec §6.3) then dispatches
// to the route table.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.router.ServeHTTP(w, r)
}

// Match reports whether the dispatcher has a registered route for r, the
// way dispatch needs to know before falling back to a plain 400.
func (s *Server) Match(r *http.Request) bool {
	var match mux.RouteMatch
	return s.router.Match(r, &match)
}
