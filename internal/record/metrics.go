// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package record

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	layoutLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dynq_record_layout_lookups_total",
			Help: "Record type lookups by signature, labelled hit or miss",
		},
		[]string{"result"},
	)

	layoutCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dynq_record_layouts",
			Help: "Number of record types synthesized",
		},
	)
)
