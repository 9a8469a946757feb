package monitoring

import (
	"time"

	"hlsarchiver/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes pull-loop, download, and notifier metrics for
// every feed a recorder process is pulling.
type PrometheusCollector struct {
	feedsActive prometheus.Gauge

	playlistPollsTotal   *prometheus.CounterVec
	playlistPollDuration *prometheus.HistogramVec
	playlistPollErrors   *prometheus.CounterVec

	segmentsDownloadedTotal *prometheus.CounterVec
	segmentsFailedTotal     *prometheus.CounterVec
	segmentDownloadDuration *prometheus.HistogramVec
	bytesDownloadedTotal    *prometheus.CounterVec

	chunksClosedTotal prometheus.Counter

	notifyAttemptsTotal prometheus.Counter
	notifyFailuresTotal prometheus.Counter

	wallClockRecoveryTotal *prometheus.CounterVec
	discontinuitiesTotal  *prometheus.CounterVec
}

// NewPrometheusCollector registers and returns the default metric set.
func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		feedsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hlsarchiver_feeds_active",
			Help: "Number of feeds currently being pulled by this instance",
		}),

		playlistPollsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hlsarchiver_playlist_polls_total",
			Help: "Total number of playlist fetch attempts",
		}, []string{"feed_id"}),

		playlistPollDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hlsarchiver_playlist_poll_duration_seconds",
			Help:    "Duration of a single pull-loop playlist fetch",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"feed_id"}),

		playlistPollErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hlsarchiver_playlist_poll_errors_total",
			Help: "Total number of playlist fetch failures",
		}, []string{"feed_id"}),

		segmentsDownloadedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hlsarchiver_segments_downloaded_total",
			Help: "Total number of segments successfully downloaded",
		}, []string{"feed_id"}),

		segmentsFailedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hlsarchiver_segments_failed_total",
			Help: "Total number of segment downloads that exhausted retries",
		}, []string{"feed_id"}),

		segmentDownloadDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hlsarchiver_segment_download_duration_seconds",
			Help:    "Duration of a single segment download",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"feed_id"}),

		bytesDownloadedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hlsarchiver_bytes_downloaded_total",
			Help: "Total bytes of segment data downloaded",
		}, []string{"feed_id"}),

		chunksClosedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hlsarchiver_chunks_closed_total",
			Help: "Total number of chunks finalized and handed to the notifier",
		}),

		notifyAttemptsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hlsarchiver_notify_attempts_total",
			Help: "Total number of chunk notification delivery attempts",
		}),

		notifyFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hlsarchiver_notify_failures_total",
			Help: "Total number of chunk notification attempts that failed",
		}),

		wallClockRecoveryTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hlsarchiver_wall_clock_recovery_total",
			Help: "Total number of times a feed's pull loop invoked wall-clock recovery",
		}, []string{"feed_id"}),

		discontinuitiesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hlsarchiver_discontinuities_total",
			Help: "Total number of upstream discontinuities detected (media-sequence regression or failed merge)",
		}, []string{"feed_id"}),
	}
}

// RecordFeedStarted increments the active feed gauge.
func (p *PrometheusCollector) RecordFeedStarted() {
	p.feedsActive.Inc()
}

// RecordFeedStopped decrements the active feed gauge.
func (p *PrometheusCollector) RecordFeedStopped() {
	p.feedsActive.Dec()
}

// RecordPlaylistPoll records one pull-loop iteration's outcome.
func (p *PrometheusCollector) RecordPlaylistPoll(feedID domain.FeedID, duration time.Duration, err error) {
	id := string(feedID)
	p.playlistPollsTotal.WithLabelValues(id).Inc()
	p.playlistPollDuration.WithLabelValues(id).Observe(duration.Seconds())
	if err != nil {
		p.playlistPollErrors.WithLabelValues(id).Inc()
	}
}

// RecordSegmentDownload records the outcome of one segment fetch.
func (p *PrometheusCollector) RecordSegmentDownload(feedID domain.FeedID, duration time.Duration, bytes int64, err error) {
	id := string(feedID)
	if err != nil {
		p.segmentsFailedTotal.WithLabelValues(id).Inc()
		return
	}
	p.segmentsDownloadedTotal.WithLabelValues(id).Inc()
	p.segmentDownloadDuration.WithLabelValues(id).Observe(duration.Seconds())
	p.bytesDownloadedTotal.WithLabelValues(id).Add(float64(bytes))
}

// RecordChunkClosed increments the chunk-close counter.
func (p *PrometheusCollector) RecordChunkClosed() {
	p.chunksClosedTotal.Inc()
}

// RecordNotifyAttempt records a single notifier delivery attempt.
func (p *PrometheusCollector) RecordNotifyAttempt(success bool) {
	p.notifyAttemptsTotal.Inc()
	if !success {
		p.notifyFailuresTotal.Inc()
	}
}

// RecordWallClockRecovery records the pull loop re-deriving a feed's
// segment datetimes through wall-clock recovery.
func (p *PrometheusCollector) RecordWallClockRecovery(feedID domain.FeedID) {
	p.wallClockRecoveryTotal.WithLabelValues(string(feedID)).Inc()
}

// RecordDiscontinuity records an upstream discontinuity detected for a feed
// (media-sequence regression or failed merge).
func (p *PrometheusCollector) RecordDiscontinuity(feedID domain.FeedID) {
	p.discontinuitiesTotal.WithLabelValues(string(feedID)).Inc()
}
