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


package tracing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampler_ClampsRate(t *testing.T) {
	for _, rate := range []float64{0, -1, 1, 2} {
		assert.Contains(t, sampler(rate).Description(), "AlwaysOnSampler", "rate %v", rate)
	}
	assert.True(t, strings.Contains(sampler(0.25).Description(), "TraceIDRatioBased{0.25}"))
}
