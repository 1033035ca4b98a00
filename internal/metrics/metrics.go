package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	LastIndexedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "milestoneindexor_last_indexed_block",
			Help: "The last block number successfully indexed",
		},
		[]string{"worker"},
	)

	LastMilestoneSequence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "milestoneindexor_last_milestone_sequence",
			Help: "The last milestone sequence id successfully processed",
		},
	)

	BlocksIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestoneindexor_blocks_indexed_total",
			Help: "Total number of blocks written by each worker",
		},
		[]string{"worker"},
	)

	MilestonesIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestoneindexor_milestones_indexed_total",
			Help: "Total number of milestones written by each worker",
		},
		[]string{"worker"},
	)

	BatchProcessingTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "milestoneindexor_batch_processing_duration_seconds",
			Help:    "Time taken to process one batch of work",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"worker"},
	)

	// Enrichment and finality metrics
	EnrichmentTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "milestoneindexor_enrichment_duration_seconds",
			Help:    "Time taken to enrich a batch of blocks with receipt metrics",
			Buckets: prometheus.DefBuckets,
		},
	)

	FinalityRowsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "milestoneindexor_finality_rows_written_total",
			Help: "Total number of block finality rows written",
		},
	)

	FeeRowsRepaired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "milestoneindexor_fee_rows_repaired_total",
			Help: "Total number of blocks whose fee metrics were backfilled",
		},
	)

	ReorgsHandled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "milestoneindexor_reorgs_handled_total",
			Help: "Total number of reorgs resolved",
		},
	)

	ReorgDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "milestoneindexor_reorg_depth_blocks",
			Help:    "Number of blocks rewound per reorg",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
		},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "milestoneindexor_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestoneindexor_errors_total",
			Help: "Total number of errors by worker",
		},
		[]string{"worker"},
	)

	WorkerHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "milestoneindexor_worker_health",
			Help: "Worker health status (1=healthy, 0=unhealthy)",
		},
		[]string{"worker"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "milestoneindexor_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "milestoneindexor_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func LastIndexedBlockSet(worker string, blockNum uint64) {
	LastIndexedBlock.WithLabelValues(worker).Set(float64(blockNum))
}

func LastMilestoneSequenceSet(sequenceID uint64) {
	LastMilestoneSequence.Set(float64(sequenceID))
}

func BlocksIndexedInc(worker string, count int) {
	BlocksIndexed.WithLabelValues(worker).Add(float64(count))
}

func MilestonesIndexedInc(worker string, count int) {
	MilestonesIndexed.WithLabelValues(worker).Add(float64(count))
}

func BatchProcessingTimeLog(worker string, duration time.Duration) {
	BatchProcessingTime.WithLabelValues(worker).Observe(duration.Seconds())
}

func EnrichmentTimeLog(duration time.Duration) {
	EnrichmentTime.Observe(duration.Seconds())
}

func FinalityRowsWrittenInc(count int) {
	FinalityRowsWritten.Add(float64(count))
}

func FeeRowsRepairedInc(count int) {
	FeeRowsRepaired.Add(float64(count))
}

func ReorgHandled(depth int) {
	ReorgsHandled.Inc()
	ReorgDepth.Observe(float64(depth))
}

func ErrorsInc(worker string) {
	Errors.WithLabelValues(worker).Inc()
}

func WorkerHealthSet(worker string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	WorkerHealth.WithLabelValues(worker).Set(boolAsFloat)
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())

	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
