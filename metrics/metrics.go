package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/videomoments/pipeline/config"
)

// ClientMetrics instruments a single outbound HTTP client (object store,
// inference, transcription) the same way regardless of which one it is.
type ClientMetrics struct {
	RetryCount      *prometheus.GaugeVec
	FailureCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type PipelineMetrics struct {
	Version prometheus.CounterVec

	JobsInFlight prometheus.Gauge

	StageDuration  *prometheus.HistogramVec
	StageCount     *prometheus.CounterVec
	StageSkips     *prometheus.CounterVec
	LockContention prometheus.Counter
	StaleReclaims  prometheus.Counter

	TunnelCreateCount    *prometheus.CounterVec
	TunnelReuseCount     *prometheus.CounterVec
	TunnelTeardownErrors prometheus.Counter

	HistoryEvictions prometheus.Counter

	InferenceClient      ClientMetrics
	TranscriptionClient  ClientMetrics
	ObjectStoreClient    ClientMetrics
}

var stageLabels = []string{"stage"}

func NewMetrics() *PipelineMetrics {
	m := &PipelineMetrics{
		Version: *promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "version",
			Help: "Current Git SHA / Tag that's running. Incremented once on app startup.",
		}, []string{"app", "version"}),

		JobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_jobs_in_flight",
			Help: "A count of the video pipelines currently being orchestrated by this worker",
		}),

		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Time taken for a stage to complete, by stage",
			Buckets: []float64{.5, 1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}, stageLabels),
		StageCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_stage_total",
			Help: "Count of stage executions by stage and outcome",
		}, []string{"stage", "outcome"}),
		StageSkips: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_stage_skips_total",
			Help: "Count of stages skipped, by stage and reason",
		}, []string{"stage", "reason"}),
		LockContention: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_lock_contention_total",
			Help: "Count of acquire_lock calls that found the video already locked",
		}),
		StaleReclaims: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_stale_reclaims_total",
			Help: "Count of stream messages reclaimed via xautoclaim from a stalled consumer",
		}),

		TunnelCreateCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_tunnel_create_total",
			Help: "Count of SSH tunnels created, by model",
		}, []string{"model_key"}),
		TunnelReuseCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_tunnel_reuse_total",
			Help: "Count of SSH tunnels reused because the local port was already accessible",
		}, []string{"model_key"}),
		TunnelTeardownErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_tunnel_teardown_errors_total",
			Help: "Count of errors encountered while tearing down a tunnel",
		}),

		HistoryEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_history_evictions_total",
			Help: "Count of archived runs evicted for exceeding the per-video history bound",
		}),

		InferenceClient:     newClientMetrics("inference"),
		TranscriptionClient: newClientMetrics("transcription"),
		ObjectStoreClient:   newClientMetrics("object_store"),
	}

	m.Version.WithLabelValues("pipeline-worker", config.Version).Inc()

	return m
}

func newClientMetrics(name string) ClientMetrics {
	return ClientMetrics{
		RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: name + "_client_retry_count",
			Help: "The number of retried " + name + " requests",
		}, []string{"host"}),
		FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: name + "_client_failure_count",
			Help: "The total number of failed " + name + " requests",
		}, []string{"host", "status_code"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    name + "_client_request_duration",
			Help:    "Time taken to send " + name + " requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"host"}),
	}
}

var Metrics = NewMetrics()
