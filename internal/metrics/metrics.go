// Package metrics exports ingestion counters to Prometheus
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Peak outcomes
const (
	Accepted    = "accepted"
	Rejected    = "rejected"
	OutOfBounds = "out_of_bounds"
)

// Recorder holds the collectors of one registry. All methods can be
// called on a nil *Recorder, they do nothing then.
type Recorder struct {
	scans        *prometheus.CounterVec
	ms1WithoutRT prometheus.Counter
	peaks        *prometheus.CounterVec
	ms2Marks     prometheus.Counter
	duration     prometheus.Histogram
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mzheat_scans_total",
			Help: "Number of spectra read, by MS level",
		}, []string{"ms_level"}),
		ms1WithoutRT: f.NewCounter(prometheus.CounterOpts{
			Name: "mzheat_ms1_without_rt_total",
			Help: "Number of MS1 spectra skipped because they have no retention time",
		}),
		peaks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mzheat_peaks_total",
			Help: "Number of MS1 peaks, by threshold and bounds outcome",
		}, []string{"outcome"}),
		ms2Marks: f.NewCounter(prometheus.CounterOpts{
			Name: "mzheat_ms2_marks_total",
			Help: "Number of MS2 spectra written to the MS2 surface",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mzheat_ingest_duration_seconds",
			Help:    "Time to ingest one file",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~200s
		}),
	}
}

// Scan counts a spectrum
func (r *Recorder) Scan(msLevel int) {
	if r == nil {
		return
	}
	r.scans.WithLabelValues(strconv.Itoa(msLevel)).Inc()
}

// MS1WithoutRT counts an MS1 spectrum without retention time
func (r *Recorder) MS1WithoutRT() {
	if r == nil {
		return
	}
	r.ms1WithoutRT.Inc()
}

// Peaks adds the peak outcomes of one spectrum
func (r *Recorder) Peaks(accepted, rejected, outOfBounds int) {
	if r == nil {
		return
	}
	r.peaks.WithLabelValues(Accepted).Add(float64(accepted))
	r.peaks.WithLabelValues(Rejected).Add(float64(rejected))
	r.peaks.WithLabelValues(OutOfBounds).Add(float64(outOfBounds))
}

// MS2Mark counts a write to the MS2 surface
func (r *Recorder) MS2Mark() {
	if r == nil {
		return
	}
	r.ms2Marks.Inc()
}

// ObserveIngest records the duration of a file ingestion
func (r *Recorder) ObserveIngest(d time.Duration) {
	if r == nil {
		return
	}
	r.duration.Observe(d.Seconds())
}
