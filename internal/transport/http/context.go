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

package http

import (
	"context"

	"github.com/opentrusty/tokenscope/internal/session"
)

type sessionContextKey struct{}

func withSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// GetSession returns the SSO session attached by AuthMiddleware or
// OptionalAuth, or nil.
func GetSession(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess
}

// GetUserID returns the user of the request's session, or "".
func GetUserID(ctx context.Context) string {
	if sess := GetSession(ctx); sess != nil {
		return sess.UserID
	}
	return ""
}

// GetSessionID returns the id of the request's session, or "".
func GetSessionID(ctx context.Context) string {
	if sess := GetSession(ctx); sess != nil {
		return sess.ID
	}
	return ""
}
