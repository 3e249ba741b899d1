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

// Package authctx extracts a session id from request headers, shared by
// the WebSocket control plane's connect-time session extension (spec
// §4.3 "Session extension") and the HTTP dispatcher's handlers.
package authctx

import (
	"net/http"
	"strings"
)

const cookieName = "SID"

// ExtractSessionID looks for "Authorization: Bearer <id>" first, then falls
// back to a "SID=<id>" cookie.
func ExtractSessionID(h http.Header) (string, bool) {
	if auth := h.Get("Authorization"); auth != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(auth, prefix) {
			if id := strings.TrimSpace(auth[len(prefix):]); id != "" {
				return id, true
			}
		}
	}

	for _, cookie := range strings.Split(h.Get("Cookie"), ";") {
		cookie = strings.TrimSpace(cookie)
		if name, value, ok := strings.Cut(cookie, "="); ok && name == cookieName {
			if value != "" {
				return value, true
			}
		}
	}
	return "", false
}
