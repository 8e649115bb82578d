package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gauges
var (
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "encoder_queue_depth",
		Help: "Packets waiting in the input queue",
	})
	EngineOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "encoder_engine_open",
		Help: "1 while the stage holds an open engine",
	})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "encoder_gateway_active_sessions",
		Help: "Number of active WebRTC listener sessions",
	})
)

// Counters
var (
	PacketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoder_packets_total",
		Help: "Raw packets taken off the input queue",
	})
	PacketsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encoder_packets_dropped_total",
		Help: "Packets abandoned without output, by reason",
	}, []string{"reason"})
	QueueOverflowTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoder_queue_overflow_total",
		Help: "Packets overwritten in the input queue before being read",
	})
	UnitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoder_units_total",
		Help: "Encoded units forwarded downstream",
	})
	UnitBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoder_unit_bytes_total",
		Help: "Bytes of encoded output forwarded downstream",
	})
	EngineOpensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encoder_engine_opens_total",
		Help: "Engine activations by engine name",
	}, []string{"engine"})
	EngineClosesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoder_engine_closes_total",
		Help: "Engine releases",
	})
	EngineFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "encoder_engine_failures_total",
		Help: "Engine open failures by failing step",
	}, []string{"step"})
	SinkErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoder_sink_errors_total",
		Help: "Encoded units the downstream sink rejected",
	})
	RTPPacketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encoder_rtp_packets_total",
		Help: "RTP packets written by the RTP sink",
	})
)

// Histograms
var (
	EncodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "encoder_encode_duration_ms",
		Help:    "Time spent encoding one packet in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 25, 50},
	})
	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "encoder_flush_duration_ms",
		Help:    "Time spent draining an engine in milliseconds",
		Buckets: []float64{0.1, 1, 5, 10, 50, 100, 500, 1000},
	})
)
