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

package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	filesParsedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "archintel",
		Subsystem: "graph",
		Name:      "files_parsed_total",
		Help:      "Source files parsed across all index runs.",
	})

	parseErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "archintel",
		Subsystem: "graph",
		Name:      "parse_errors_total",
		Help:      "Files skipped or degraded due to syntax errors.",
	})

	edgesResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "archintel",
		Subsystem: "graph",
		Name:      "edges_resolved_total",
		Help:      "Edges produced by resolution, by outcome.",
	}, []string{"outcome"}) // internal | external

	buildDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "archintel",
		Subsystem: "graph",
		Name:      "build_duration_seconds",
		Help:      "Wall time of full and incremental index runs.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)
