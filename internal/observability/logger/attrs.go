// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package logger

import "log/slog"

// Attribute keys shared by application logs. Dashboards and alerts query
// these names, so they are part of the log contract.
const (
	KeyRequestID    = "request_id"
	KeyMethod       = "method"
	KeyPath         = "path"
	KeyRemoteAddr   = "remote_addr"
	KeyUserAgent    = "user_agent"
	KeyStatusCode   = "status_code"
	KeyDurationMS   = "duration_ms"
	KeyUserID       = "user_id"
	KeySessionID    = "session_id"
	KeyClientID     = "client_id"
	KeyScope        = "scope"
	KeyGrantType    = "grant_type"
	KeyOAuthError   = "oauth_error"
	KeyRevoked      = "revoked_count"
	KeyError        = "error"
	KeyDriver       = "driver"
	KeyRowsAffected = "rows_affected"
	KeyComponent    = "component"
	KeyOperation    = "operation"
)

func RequestID(id string) slog.Attr { return slog.String(KeyRequestID, id) }
func Method(method string) slog.Attr { return slog.String(KeyMethod, method) }
func Path(path string) slog.Attr { return slog.String(KeyPath, path) }
func RemoteAddr(addr string) slog.Attr { return slog.String(KeyRemoteAddr, addr) }
func UserAgent(ua string) slog.Attr { return slog.String(KeyUserAgent, ua) }
func StatusCode(code int) slog.Attr { return slog.Int(KeyStatusCode, code) }

// Duration is a request duration in milliseconds.
func Duration(ms int64) slog.Attr { return slog.Int64(KeyDurationMS, ms) }

func UserID(id string) slog.Attr { return slog.String(KeyUserID, id) }
func SessionID(id string) slog.Attr { return slog.String(KeySessionID, id) }
func ClientID(id string) slog.Attr { return slog.String(KeyClientID, id) }

// Scope is a space-delimited scope string as granted or requested.
func Scope(scope string) slog.Attr { return slog.String(KeyScope, scope) }

func GrantType(grantType string) slog.Attr { return slog.String(KeyGrantType, grantType) }

// OAuthError records the protocol error code returned to a client.
func OAuthError(code string) slog.Attr { return slog.String(KeyOAuthError, code) }

// Revoked is the number of tokens invalidated by a cascade.
func Revoked(n int) slog.Attr { return slog.Int(KeyRevoked, n) }

// Error logs err's message, or an empty string for nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

func Driver(name string) slog.Attr { return slog.String(KeyDriver, name) }
func RowsAffected(rows int64) slog.Attr { return slog.Int64(KeyRowsAffected, rows) }
func Component(name string) slog.Attr { return slog.String(KeyComponent, name) }
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }
