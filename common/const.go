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

package common

const (
	// App is the program name, used as the Prometheus metric namespace.
	App = "streamd"

	// Version is the fallback build version when no linker flag is set.
	Version = "v0.0.1"

	// MaxDatagramPayload is the largest payload a squic packet may carry,
	// the same value as squic.MaxPayload. The transport and the WebSocket
	// chunked-push path size their buffers off squic.MaxPayload, not this.
	MaxDatagramPayload = 16384
)
