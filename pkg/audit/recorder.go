package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RecorderConfig configures the async recorder.
type RecorderConfig struct {
	// Enabled enables audit recording.
	Enabled bool

	// Buffer is the size of the async write channel. When full, records
	// are dropped (and counted) rather than blocking the decision path.
	// Default: 1000.
	Buffer int

	// WriteTimeout bounds each storage write.
	// Default: 5 seconds.
	WriteTimeout time.Duration
}

// DefaultRecorderConfig returns the default recorder configuration.
func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		Enabled:      true,
		Buffer:       1000,
		WriteTimeout: 5 * time.Second,
	}
}

// RecorderMetrics receives recorder observations.
type RecorderMetrics interface {
	IncRecorded()
	IncDropped()
	IncWriteError()
}

// Recorder writes audit records asynchronously: Record is a channel handoff
// and never blocks on storage. A background worker drains the channel;
// Close flushes everything already enqueued.
type Recorder struct {
	config  *RecorderConfig
	storage Storage
	logger  *slog.Logger
	metrics RecorderMetrics

	records chan *Record
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewRecorder creates a recorder and starts its worker.
func NewRecorder(storage Storage, config *RecorderConfig) *Recorder {
	if config == nil {
		config = DefaultRecorderConfig()
	}
	r := &Recorder{
		config:  config,
		storage: storage,
		logger:  slog.Default().With("component", "audit.recorder"),
		records: make(chan *Record, config.Buffer),
		done:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// SetMetrics installs a metrics sink. Must be called before serving traffic.
func (r *Recorder) SetMetrics(m RecorderMetrics) {
	r.metrics = m
}

// Record enqueues a record for async storage. Never blocks: when the
// buffer is full the record is dropped and logged.
func (r *Recorder) Record(record *Record) {
	if !r.config.Enabled {
		return
	}
	select {
	case r.records <- record:
		if r.metrics != nil {
			r.metrics.IncRecorded()
		}
	default:
		if r.metrics != nil {
			r.metrics.IncDropped()
		}
		r.logger.Warn("audit buffer full, dropping record", "trace_id", record.TraceID)
	}
}

// Close stops accepting records and drains everything already enqueued.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for {
		select {
		case record := <-r.records:
			r.write(record)
		case <-r.done:
			// Drain what is already buffered before exiting.
			for {
				select {
				case record := <-r.records:
					r.write(record)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(record *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if err := r.storage.Store(ctx, record); err != nil {
		if r.metrics != nil {
			r.metrics.IncWriteError()
		}
		r.logger.Error("failed to store audit record",
			"trace_id", record.TraceID, "error", err)
	}
}
