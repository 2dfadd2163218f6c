package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var namespace = "tidestore"
var subsystem = "journal"

var (
	// RecordsSubmitted stores the number of records accepted by the submitter
	RecordsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "records_submitted_total",
		Help:      "Number of records accepted by the record submitter",
	})

	// FastPathWrites stores the number of records written alone without batching
	FastPathWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fast_path_writes_total",
		Help:      "Number of records written on the uncontended fast path",
	})

	// BatchesFlushed stores the number of record batches handed to the device
	BatchesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "batches_flushed_total",
		Help:      "Number of record batches flushed as a single device write",
	})

	// SegmentRolls stores the number of journal segment transitions
	SegmentRolls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "segment_rolls_total",
		Help:      "Number of rolls to a new journal segment",
	})

	// ReplayedRecords stores the number of records delivered during replay
	ReplayedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "replayed_records_total",
		Help:      "Number of records replayed from persisted segments",
	})

	// OutstandingIO stores the number of device writes currently in flight
	OutstandingIO = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "outstanding_io",
		Help:      "Number of journal device writes currently in flight",
	})

	// WrittenBytes stores the number of bytes handed to the segment device
	WrittenBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "written_bytes_total",
		Help:      "Number of encoded bytes written to journal segments",
	})
)
