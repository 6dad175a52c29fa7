package run

import (
	"context"
	"errors"
	"net/http"

	"utter/internal/audio"
	"utter/internal/segment"
	"utter/internal/sink"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics are the daemon's Prometheus collectors, on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	Frames           *prometheus.CounterVec
	Overflows        prometheus.Counter
	Utterances       prometheus.Counter
	UtteranceSeconds prometheus.Histogram
	SinkFailures     prometheus.Counter
	QueueDepth       prometheus.Gauge
	Heard            prometheus.Counter
	ASRSeconds       prometheus.Histogram
	Hooks            *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Frames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "utter_frames_total",
			Help: "Frames processed by the segmentation engine, by disposition",
		}, []string{"disposition"}),
		Overflows: f.NewCounter(prometheus.CounterOpts{
			Name: "utter_input_overflows_total",
			Help: "Frames read while the input device reported an overflow",
		}),
		Utterances: f.NewCounter(prometheus.CounterOpts{
			Name: "utter_utterances_total",
			Help: "Utterances emitted by the segmentation engine",
		}),
		UtteranceSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "utter_utterance_duration_seconds",
			Help:    "Audio length of emitted utterances",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		SinkFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "utter_sink_failures_total",
			Help: "Utterances the downstream chain failed to process",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "utter_queue_depth",
			Help: "Utterances waiting for transcription",
		}),
		Heard: f.NewCounter(prometheus.CounterOpts{
			Name: "utter_heard_total",
			Help: "Utterances that produced a non-empty transcript",
		}),
		ASRSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "utter_asr_duration_seconds",
			Help:    "Time spent transcribing one utterance",
			Buckets: prometheus.DefBuckets,
		}),
		Hooks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "utter_hooks_total",
			Help: "Hook dispatches, by result",
		}, []string{"result"}),
	}
}

// observeStep records one engine step.
func (m *Metrics) observeStep(fr audio.Frame, st segment.Step) {
	m.Frames.WithLabelValues(st.Disposition.String()).Inc()
	if fr.Overflow {
		m.Overflows.Inc()
	}
	if st.Utterance != nil {
		m.Utterances.Inc()
		m.UtteranceSeconds.Observe(st.Utterance.Duration().Seconds())
	}
}

func (m *Metrics) observeResult(r sink.Result) {
	if r.Text != "" {
		m.Heard.Inc()
	}
	if r.ASRTime > 0 {
		m.ASRSeconds.Observe(r.ASRTime.Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) serve(ctx context.Context, addr string, logger logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	logger.Infof("metrics listening on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warnf("metrics server: %v", err)
	}
}
