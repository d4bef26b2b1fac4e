package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wifientist/pawketeer/internal/analysis"
	"github.com/wifientist/pawketeer/internal/database"
	"github.com/wifientist/pawketeer/internal/dot11"
	"github.com/wifientist/pawketeer/internal/pcap"
)

// ErrQueueFull is returned when the analysis backlog is at capacity.
var ErrQueueFull = errors.New("analysis queue full")

type job struct {
	runID    uint
	pcapID   uint
	path     string
	filename string
}

// Runner owns the analysis worker pool. Requests are queued through
// Enqueue and picked up by a fixed set of workers, so a burst of
// analyze calls cannot fork unbounded engine runs.
type Runner struct {
	db         *database.DB
	workers    int
	maxPackets int
	log        *log.Logger

	queue chan job
	wg    sync.WaitGroup

	// analyze is swapped out in tests.
	analyze func(ctx context.Context, path string, maxPackets int, allAnalyzers bool, logger *log.Logger) (*analysis.Report, error)
}

func NewRunner(db *database.DB, workers, queueSize, maxPackets int, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Runner{
		db:         db,
		workers:    workers,
		maxPackets: maxPackets,
		log:        logger,
		queue:      make(chan job, queueSize),
		analyze:    AnalyzeFile,
	}
}

// Start launches the workers. They exit when the context is cancelled
// or the queue is closed.
func (r *Runner) Start(ctx context.Context) {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func(id int) {
			defer r.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j, ok := <-r.queue:
					if !ok {
						return
					}
					r.runOne(ctx, j)
				}
			}
		}(i)
	}
	r.log.Info("Analysis workers started", "workers", r.workers, "queue", cap(r.queue))
}

// Stop drains in-flight work. No new jobs may be enqueued afterwards.
func (r *Runner) Stop() {
	close(r.queue)
	r.wg.Wait()
}

// Enqueue creates the analysis row and hands the job to the pool. The
// row is created first so the single-active-run rule is enforced in
// one place; a full queue rolls the row to error rather than leaving
// it pending forever.
func (r *Runner) Enqueue(p *database.PcapFile) (*database.PcapAnalysis, error) {
	run, err := r.db.CreateAnalysis(p.ID)
	if err != nil {
		return nil, err
	}

	select {
	case r.queue <- job{runID: run.ID, pcapID: p.ID, path: p.FilePath, filename: p.Filename}:
	default:
		if markErr := r.db.MarkError(run.ID, ErrQueueFull); markErr != nil {
			r.log.Error("Failed to mark overflowed run", "run", run.ID, "error", markErr)
		}
		return nil, ErrQueueFull
	}

	database.PublishEvent(database.AnalysisEvent{
		Type: "queued", PcapID: p.ID, RunID: run.ID,
		Status: string(database.StatusPending), Filename: p.Filename,
	})
	return run, nil
}

func (r *Runner) runOne(ctx context.Context, j job) {
	started := time.Now()
	// A crash in the engine must not take the worker down with it.
	defer func() {
		if v := recover(); v != nil {
			r.finishError(j, fmt.Errorf("analysis panicked: %v", v))
		}
	}()
	if err := r.db.MarkRunning(j.runID); err != nil {
		r.log.Error("Failed to mark run as running", "run", j.runID, "error", err)
		return
	}
	database.PublishEvent(database.AnalysisEvent{
		Type: "running", PcapID: j.pcapID, RunID: j.runID,
		Status: string(database.StatusRunning), Filename: j.filename,
	})
	r.log.Info("Analysis started", "run", j.runID, "pcap", j.pcapID, "file", j.filename)

	report, err := r.analyze(ctx, j.path, r.maxPackets, false, r.log)
	if err != nil {
		r.finishError(j, err)
		return
	}

	frameMix, details := report.Summary()
	result := &database.PcapAnalysis{
		DurationMS:    time.Since(started).Milliseconds(),
		TotalPackets:  report.TotalPackets,
		UniqueDevices: report.UniqueDevices,
		UniqueAPs:     report.UniqueAPs,
		UniqueClients: report.UniqueClients,
		SSIDCount:     report.SSIDCount,
		FrameMix:      frameMix,
		Details:       details,
	}
	if err := r.db.MarkOK(j.runID, result); err != nil {
		r.log.Error("Failed to store analysis result", "run", j.runID, "error", err)
		r.finishError(j, fmt.Errorf("store result: %w", err))
		return
	}

	database.PublishEvent(database.AnalysisEvent{
		Type: "completed", PcapID: j.pcapID, RunID: j.runID,
		Status: string(database.StatusOK), Filename: j.filename,
	})
	r.log.Info("Analysis completed",
		"run", j.runID,
		"packets", report.TotalPackets,
		"pattern", report.Profile.Pattern,
		"duration", time.Since(started).Round(time.Millisecond))
}

func (r *Runner) finishError(j job, cause error) {
	if err := r.db.MarkError(j.runID, cause); err != nil {
		r.log.Error("Failed to mark run as failed", "run", j.runID, "error", err)
	}
	database.PublishEvent(database.AnalysisEvent{
		Type: "failed", PcapID: j.pcapID, RunID: j.runID,
		Status: string(database.StatusError), Error: cause.Error(), Filename: j.filename,
	})
	r.log.Warn("Analysis failed", "run", j.runID, "file", j.filename, "error", cause)
}

// AnalyzeFile runs the engine over one capture file. Used by the
// worker pool and by the CLI for one-off runs.
func AnalyzeFile(ctx context.Context, path string, maxPackets int, allAnalyzers bool, logger *log.Logger) (*analysis.Report, error) {
	f, err := pcap.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := dot11.NewDecoder(f.LinkType())
	src := func() (*dot11.Frame, error) {
		data, ci, err := f.Next()
		if err != nil {
			// A capture chopped mid-record still yields everything
			// read so far.
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		return decoder.Decode(data, ci.Timestamp), nil
	}

	engine := analysis.NewEngine(maxPackets, logger)
	engine.AllAnalyzers = allAnalyzers
	return engine.Run(ctx, src)
}

// StartRetention launches the hourly pruning loop when a retention
// age is configured.
func StartRetention(ctx context.Context, db *database.DB, maxAge, interval time.Duration, logger *log.Logger) {
	if maxAge <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := db.PruneAnalyses(time.Now().UTC().Add(-maxAge))
				if err != nil {
					logger.Error("Retention pruning failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("Pruned old analyses", "removed", n, "max_age", maxAge)
				}
			}
		}
	}()
}
