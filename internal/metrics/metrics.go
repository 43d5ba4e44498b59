/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package metrics defines the Prometheus collectors fastbundle reports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Invalidation reasons.
const (
	ReasonDependency    = "dependency"
	ReasonEntryPoints   = "entrypoints"
	ReasonOutputMissing = "output-missing"
	ReasonSourceRoot    = "source-root"
)

var (
	BundleBuildCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastbundle_bundle_build_total",
			Help: "Total number of bundle builds, by result",
		},
		[]string{"result"},
	)

	BundleBuildFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastbundle_bundle_build_failed_total",
			Help: "Number of times a bundle has failed to build",
		},
		[]string{"bundle"},
	)

	BundleBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fastbundle_bundle_build_duration_seconds",
			Help:    "Bundle build duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"bundle"},
	)

	BundleInvalidated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastbundle_bundle_invalidated_total",
			Help: "Number of bundle invalidations, by reason",
		},
		[]string{"reason"},
	)

	BundleSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fastbundle_bundle_skipped_total",
			Help: "Number of up-to-date bundles skipped",
		},
	)

	BundleDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fastbundle_bundle_deleted_total",
			Help: "Number of bundles deleted after their entry points vanished",
		},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fastbundle_cycle_duration_seconds",
			Help:    "Build cycle duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	WatchedFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fastbundle_watched_files",
			Help: "Number of source files currently fingerprinted",
		},
	)
)
