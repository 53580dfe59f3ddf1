// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pool

import "github.com/prometheus/client_golang/prometheus"

// Metrics aggregates bytes active/allocated/deallocated for one Arena, per
// spec.md §4.4. Registering it is optional: an Arena constructed with a nil
// *Metrics simply skips instrumentation.
type Metrics struct {
	BytesActive      prometheus.Gauge
	BytesAllocated   prometheus.Counter
	BytesDeallocated prometheus.Counter
	ChunkCount       prometheus.Gauge
	ThreadCaches     prometheus.Gauge
}

// NewMetrics builds a Metrics set labeled with arena, suitable for
// registering with a prometheus.Registerer.
func NewMetrics(registerer prometheus.Registerer, arena string) *Metrics {
	m := &Metrics{
		BytesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "membuf", Subsystem: "arena", Name: "bytes_active",
			ConstLabels: prometheus.Labels{"arena": arena},
		}),
		BytesAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "membuf", Subsystem: "arena", Name: "bytes_allocated_total",
			ConstLabels: prometheus.Labels{"arena": arena},
		}),
		BytesDeallocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "membuf", Subsystem: "arena", Name: "bytes_deallocated_total",
			ConstLabels: prometheus.Labels{"arena": arena},
		}),
		ChunkCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "membuf", Subsystem: "arena", Name: "chunk_count",
			ConstLabels: prometheus.Labels{"arena": arena},
		}),
		ThreadCaches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "membuf", Subsystem: "arena", Name: "num_thread_caches",
			ConstLabels: prometheus.Labels{"arena": arena},
		}),
	}
	if registerer != nil {
		registerer.MustRegister(m.BytesActive, m.BytesAllocated, m.BytesDeallocated, m.ChunkCount, m.ThreadCaches)
	}
	return m
}

func (m *Metrics) recordAlloc(n int) {
	if m == nil {
		return
	}
	m.BytesActive.Add(float64(n))
	m.BytesAllocated.Add(float64(n))
}

func (m *Metrics) recordFree(n int) {
	if m == nil {
		return
	}
	m.BytesActive.Add(-float64(n))
	m.BytesDeallocated.Add(float64(n))
}

func (m *Metrics) setChunkCount(n int) {
	if m == nil {
		return
	}
	m.ChunkCount.Set(float64(n))
}

func (m *Metrics) setThreadCaches(n int) {
	if m == nil {
		return
	}
	m.ThreadCaches.Set(float64(n))
}
