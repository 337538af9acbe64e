// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics wires the narrow per-component Metrics interfaces
// (internal/bus.Metrics, internal/router.Metrics,
// internal/northbound.Metrics) against prometheus/client_golang, so none
// of those packages import Prometheus directly. Grounded on
// internal/metricdata/prometheus.go's client usage and the
// promauto.With(registerer).New*(...) registration idiom used throughout
// the wider example pack (e.g. the Loki distributor's ingesterAppends
// CounterVec).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry owns one prometheus.Registerer and builds every component's
// metrics bound to it, so a test can construct an isolated registry per
// case instead of colliding on the global default one.
type Registry struct {
	reg prometheus.Registerer
}

// NewRegistry wraps reg. Pass prometheus.NewRegistry() for an isolated
// instance, or prometheus.DefaultRegisterer in production.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return &Registry{reg: reg}
}

// BusMetrics implements internal/bus.Metrics.
type BusMetrics struct {
	ringUsed     prometheus.Gauge
	publishTotal prometheus.Counter
	dropTotal    prometheus.Counter
	backlogLag   *prometheus.GaugeVec
	walBytes     prometheus.Gauge
	walFlushDur  prometheus.Histogram
}

func (r *Registry) NewBusMetrics() *BusMetrics {
	return &BusMetrics{
		ringUsed: promauto.With(r.reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway", Subsystem: "bus", Name: "ring_used",
			Help: "Slot capacity of the broadcast ring (the bus reports its fixed capacity, not the number of occupied slots).",
		}),
		publishTotal: promauto.With(r.reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "bus", Name: "publish_total",
			Help: "Total envelopes published to the bus.",
		}),
		dropTotal: promauto.With(r.reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "bus", Name: "drop_total",
			Help: "Total publishes dropped due to WAL append failure.",
		}),
		backlogLag: promauto.With(r.reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gateway", Subsystem: "bus", Name: "subscriber_lag",
			Help: "Envelopes dropped for a lagging subscriber, by subscriber id.",
		}, []string{"subscriber"}),
		walBytes: promauto.With(r.reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway", Subsystem: "bus", Name: "wal_bytes",
			Help: "Total bytes held in WAL segments.",
		}),
		walFlushDur: promauto.With(r.reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "gateway", Subsystem: "bus", Name: "wal_flush_duration_seconds",
			Help:    "Duration of WAL group-commit fsync calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *BusMetrics) SetRingUsed(n int)                  { m.ringUsed.Set(float64(n)) }
func (m *BusMetrics) IncPublishTotal()                    { m.publishTotal.Inc() }
func (m *BusMetrics) IncDropTotal()                       { m.dropTotal.Inc() }
func (m *BusMetrics) SetBacklogLag(sub string, n uint64)  { m.backlogLag.WithLabelValues(sub).Set(float64(n)) }
func (m *BusMetrics) SetWalBytes(n int64)                 { m.walBytes.Set(float64(n)) }
func (m *BusMetrics) ObserveWalFlushDuration(s float64)   { m.walFlushDur.Observe(s) }

// RouterMetrics implements internal/router.Metrics.
type RouterMetrics struct {
	submitTotal      prometheus.Counter
	dispatchTotal    prometheus.Counter
	publishFailTotal prometheus.Counter
	timeoutTotal     prometheus.Counter
	unknownAckTotal  prometheus.Counter
	queueDepth       *prometheus.GaugeVec
}

func (r *Registry) NewRouterMetrics() *RouterMetrics {
	return &RouterMetrics{
		submitTotal: promauto.With(r.reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "router", Name: "submit_total",
			Help: "Total commands submitted.",
		}),
		dispatchTotal: promauto.With(r.reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "router", Name: "dispatch_total",
			Help: "Total commands dispatched onto the bus.",
		}),
		publishFailTotal: promauto.With(r.reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "router", Name: "publish_fail_total",
			Help: "Total command dispatches that failed to publish.",
		}),
		timeoutTotal: promauto.With(r.reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "router", Name: "timeout_total",
			Help: "Total commands that timed out before an ack arrived.",
		}),
		unknownAckTotal: promauto.With(r.reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "router", Name: "unknown_ack_total",
			Help: "Total acks received for an untracked cmd_id.",
		}),
		queueDepth: promauto.With(r.reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gateway", Subsystem: "router", Name: "queue_depth",
			Help: "Current depth of each priority queue.",
		}, []string{"priority"}),
	}
}

func (m *RouterMetrics) IncSubmitTotal()      { m.submitTotal.Inc() }
func (m *RouterMetrics) IncDispatchTotal()    { m.dispatchTotal.Inc() }
func (m *RouterMetrics) IncPublishFailTotal() { m.publishFailTotal.Inc() }
func (m *RouterMetrics) IncTimeoutTotal()     { m.timeoutTotal.Inc() }
func (m *RouterMetrics) IncUnknownAckTotal()  { m.unknownAckTotal.Inc() }
func (m *RouterMetrics) SetQueueDepth(priority int32, depth int) {
	m.queueDepth.WithLabelValues(priorityLabel(priority)).Set(float64(depth))
}

func priorityLabel(p int32) string {
	switch p {
	case 0:
		return "low"
	case 1:
		return "normal"
	case 2:
		return "high"
	case 3:
		return "emergency"
	default:
		return "unknown"
	}
}

// NorthboundMetrics implements internal/northbound.Metrics.
type NorthboundMetrics struct {
	publishTotal     prometheus.Counter
	publishFailTotal prometheus.Counter
	bufferDropTotal  prometheus.Counter
	connState        prometheus.Gauge
	bufferDepth      prometheus.Gauge
}

func (r *Registry) NewNorthboundMetrics() *NorthboundMetrics {
	return &NorthboundMetrics{
		publishTotal: promauto.With(r.reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "northbound", Name: "publish_total",
			Help: "Total MQTT publishes acknowledged by the broker (or fired at QoS 0).",
		}),
		publishFailTotal: promauto.With(r.reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "northbound", Name: "publish_fail_total",
			Help: "Total MQTT publish attempts that failed or timed out.",
		}),
		bufferDropTotal: promauto.With(r.reg).NewCounter(prometheus.CounterOpts{
			Namespace: "gateway", Subsystem: "northbound", Name: "buffer_drop_total",
			Help: "Total outbound messages dropped because the buffer was full.",
		}),
		connState: promauto.With(r.reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway", Subsystem: "northbound", Name: "conn_state",
			Help: "MQTT connection state (0=disconnected,1=connecting,2=connected,3=failed).",
		}),
		bufferDepth: promauto.With(r.reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway", Subsystem: "northbound", Name: "buffer_depth",
			Help: "Current depth of the outbound buffer.",
		}),
	}
}

func (m *NorthboundMetrics) IncPublishTotal()     { m.publishTotal.Inc() }
func (m *NorthboundMetrics) IncPublishFailTotal() { m.publishFailTotal.Inc() }
func (m *NorthboundMetrics) IncBufferDropTotal()  { m.bufferDropTotal.Inc() }
func (m *NorthboundMetrics) SetConnState(s int32) { m.connState.Set(float64(s)) }
func (m *NorthboundMetrics) SetBufferDepth(n int) { m.bufferDepth.Set(float64(n)) }

// EndpointMetrics holds a per-endpoint circuit breaker state gauge. Nothing
// in this module calls NewEndpointMetrics or SetBreakerState, so the gauge
// is neither registered nor updated by the gateway.
type EndpointMetrics struct {
	breakerState *prometheus.GaugeVec
}

func (r *Registry) NewEndpointMetrics() *EndpointMetrics {
	return &EndpointMetrics{
		breakerState: promauto.With(r.reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gateway", Subsystem: "endpoint", Name: "breaker_state",
			Help: "Circuit breaker state per endpoint (0=closed,1=open,2=half_open).",
		}, []string{"endpoint"}),
	}
}

// SetBreakerState records url's current breaker state.
func (m *EndpointMetrics) SetBreakerState(url string, state int) {
	m.breakerState.WithLabelValues(url).Set(float64(state))
}
