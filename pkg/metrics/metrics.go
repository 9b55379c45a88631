package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge/histogram a replica or client
// exposes at /metrics.
type Metrics struct {
	// Ordering pipeline
	requestsTotal    *prometheus.CounterVec
	prePreparesTotal prometheus.Counter
	preparesTotal    prometheus.Counter
	commitsTotal     prometheus.Counter
	repliesTotal     prometheus.Counter
	replyCacheHits   prometheus.Counter
	commitLatency    prometheus.Histogram

	// View changes
	viewChangesTotal    prometheus.Counter
	currentView         prometheus.Gauge
	primaryNotDominants prometheus.Counter

	// Checkpointing
	checkpointsTotal  prometheus.Counter
	checkpointStable  prometheus.Counter
	watermarkLow      prometheus.Gauge
	watermarkHigh     prometheus.Gauge

	// Byzantine / integrity
	forksDetectedTotal  prometheus.Counter
	rejectedMessages    *prometheus.CounterVec
}

// New creates and registers every metric against the default registry.
func New() *Metrics {
	return &Metrics{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bft_requests_total",
			Help: "Total client requests received, by outcome",
		}, []string{"outcome"}),

		prePreparesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bft_pre_prepares_total",
			Help: "Total PRE-PREPARE messages accepted",
		}),

		preparesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bft_prepares_total",
			Help: "Total PREPARE messages accepted",
		}),

		commitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bft_commits_total",
			Help: "Total requests committed and executed",
		}),

		repliesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bft_replies_total",
			Help: "Total REPLY messages sent to clients",
		}),

		replyCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bft_reply_cache_hits_total",
			Help: "Total requests answered from the reply cache instead of re-executed",
		}),

		commitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bft_commit_latency_seconds",
			Help:    "Time spent executing a committed request's operation before the commit is recorded",
			Buckets: prometheus.DefBuckets,
		}),

		viewChangesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bft_view_changes_total",
			Help: "Total view changes initiated by this replica",
		}),

		currentView: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bft_current_view",
			Help: "The view this replica currently believes is active",
		}),

		primaryNotDominants: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bft_primary_not_dominant_total",
			Help: "Total PRIMARY_NOT_DOMINANT catch-up rounds triggered",
		}),

		checkpointsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bft_checkpoints_total",
			Help: "Total CHECKPOINT messages multicast by this replica",
		}),

		checkpointStable: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bft_checkpoints_stable_total",
			Help: "Total checkpoints that reached 2f+1 agreement and became stable",
		}),

		watermarkLow: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bft_watermark_low",
			Help: "Low end of the current watermark window",
		}),

		watermarkHigh: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bft_watermark_high",
			Help: "High end of the current watermark window",
		}),

		forksDetectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bft_forks_detected_total",
			Help: "Total forks detected via disagreeing current_system_state",
		}),

		rejectedMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bft_rejected_messages_total",
			Help: "Total inbound messages rejected, by error code",
		}, []string{"code"}),
	}
}

func (m *Metrics) RecordRequest(outcome string) {
	m.requestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordPrePrepare() { m.prePreparesTotal.Inc() }
func (m *Metrics) RecordPrepare()    { m.preparesTotal.Inc() }

func (m *Metrics) RecordCommit(latency time.Duration) {
	m.commitsTotal.Inc()
	m.commitLatency.Observe(latency.Seconds())
}

func (m *Metrics) RecordReply()          { m.repliesTotal.Inc() }
func (m *Metrics) RecordReplyCacheHit()  { m.replyCacheHits.Inc() }

func (m *Metrics) RecordViewChange(newView uint64) {
	m.viewChangesTotal.Inc()
	m.currentView.Set(float64(newView))
}

func (m *Metrics) RecordPrimaryNotDominant() { m.primaryNotDominants.Inc() }

func (m *Metrics) RecordCheckpoint()       { m.checkpointsTotal.Inc() }
func (m *Metrics) RecordCheckpointStable() { m.checkpointStable.Inc() }

func (m *Metrics) SetWatermark(low, high uint64) {
	m.watermarkLow.Set(float64(low))
	m.watermarkHigh.Set(float64(high))
}

func (m *Metrics) RecordForkDetected() { m.forksDetectedTotal.Inc() }

func (m *Metrics) RecordRejectedMessage(code string) {
	m.rejectedMessages.WithLabelValues(code).Inc()
}

// Registry returns the prometheus registry metrics were registered
// against, for wiring into an admin HTTP handler.
func (m *Metrics) Registry() prometheus.Gatherer {
	return prometheus.DefaultGatherer
}
