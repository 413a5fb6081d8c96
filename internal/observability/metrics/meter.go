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


// Package metrics exposes the OpenTelemetry instruments of the token pipeline.
package metrics

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Config holds metrics configuration
type Config struct {
	Enabled     bool
	ServiceName string
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New returns a meter from the global provider, or a no-op meter when
// metrics are disabled.
func New(cfg Config) *Meter {
	if !cfg.Enabled {
		return &Meter{meter: noop.NewMeterProvider().Meter(cfg.ServiceName)}
	}
	return &Meter{meter: otel.Meter(cfg.ServiceName)}
}

// NewWithProvider returns a meter from an explicit provider.
func NewWithProvider(provider metric.MeterProvider, name string) *Meter {
	return &Meter{meter: provider.Meter(name)}
}

// counterSpec names one counter and where to store it.
type counterSpec struct {
	name        string
	description string
	dst         *metric.Int64Counter
}

// registerCounters creates every counter in specs, stopping at the first failure.
func (m *Meter) registerCounters(specs ...counterSpec) error {
	for _, s := range specs {
		c, err := m.meter.Int64Counter(s.name,
			metric.WithDescription(s.description),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			return fmt.Errorf("failed to create counter %s: %w", s.name, err)
		}
		*s.dst = c
	}
	return nil
}
