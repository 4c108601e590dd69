// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package indexer

import (
	"github.com/ava-labs/avalanchego/utils/wrappers"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "abistore"

type metrics struct {
	registered   prometheus.Counter
	saves        prometheus.Counter
	loads        prometheus.Counter
	rowsInserted prometheus.Counter
	failures     *prometheus.CounterVec

	generateTime prometheus.Histogram
	executeTime  prometheus.Histogram
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		registered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "programs_registered",
			Help:      "Number of programs registered",
		}),
		saves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "saves",
			Help:      "Number of values saved",
		}),
		loads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "loads",
			Help:      "Number of values loaded",
		}),
		rowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rows_inserted",
			Help:      "Number of rows inserted by saves",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "failures",
			Help:      "Number of failed operations",
		}, []string{"op"}),
		generateTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "generate_seconds",
			Help:      "Time spent building save statements",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		executeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "execute_seconds",
			Help:      "Time spent running save statements",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(m.registered),
		registerer.Register(m.saves),
		registerer.Register(m.loads),
		registerer.Register(m.rowsInserted),
		registerer.Register(m.failures),
		registerer.Register(m.generateTime),
		registerer.Register(m.executeTime),
	)
	return m, errs.Err
}
