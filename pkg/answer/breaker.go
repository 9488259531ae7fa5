// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package answer

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kraklabs/archintel/pkg/model"
)

// BreakerGenerator wraps a Generator with a circuit breaker. After
// consecutive backend failures the circuit opens and calls fail fast with
// GenerationBackendError, which the engine maps to degraded answers, so a
// dead backend cannot stall every question for a full timeout.
type BreakerGenerator struct {
	inner   Generator
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerGenerator wraps gen. The circuit trips after 3 consecutive
// failures and probes again after 30 seconds.
func NewBreakerGenerator(gen Generator) *BreakerGenerator {
	settings := gobreaker.Settings{
		Name:        "generation-backend",
		MaxRequests: 2,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &BreakerGenerator{
		inner:   gen,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Generate runs the wrapped generator through the breaker.
func (b *BreakerGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return b.inner.Generate(ctx, system, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", &model.GenerationBackendError{Provider: "breaker", Err: err}
		}
		return "", err
	}
	text, ok := result.(string)
	if !ok {
		return "", &model.GenerationBackendError{Provider: "breaker", Err: errors.New("unexpected result type")}
	}
	return text, nil
}
