package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/wifientist/pawketeer/internal/config"
	"github.com/wifientist/pawketeer/internal/database"
	"github.com/wifientist/pawketeer/internal/jobs"
	"github.com/wifientist/pawketeer/internal/web"
	"github.com/wifientist/pawketeer/pkg/version"
)

func newLogger(level string, debug bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if debug {
		logger.SetLevel(log.DebugLevel)
		return logger
	}
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// Serve starts the analysis service: API, websocket hub, worker pool
// and the retention loop.
func Serve(configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, debug)

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	defer db.Close()

	// Runs left behind by a crash would block their pcap forever.
	if n, err := db.ResetStale(); err != nil {
		return fmt.Errorf("reset stale runs: %w", err)
	} else if n > 0 {
		logger.Warn("Reset stale analysis runs from previous session", "count", n)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := jobs.NewRunner(db, cfg.Analysis.Workers, cfg.Analysis.QueueSize, cfg.Analysis.MaxPackets, logger)
	runner.Start(ctx)
	defer runner.Stop()

	jobs.StartRetention(ctx, db, cfg.Retention.MaxAge, cfg.Retention.Interval, logger)

	logger.Info("Pawketeer started",
		"addr", cfg.Server.Addr,
		"database", cfg.Database.Path,
		"storage", cfg.Storage.Dir,
		"workers", cfg.Analysis.Workers,
		"version", version.GetBuildInfo().Version,
	)

	srv := web.NewServer(db, cfg.Server.Addr, runner, logger, version.GetBuildInfo().Version, cfg.Storage.MaxFileBytes)
	srv.ReadTimeout = cfg.Server.ReadTimeout
	srv.WriteTimeout = cfg.Server.WriteTimeout
	srv.Extensions = cfg.Storage.AllowedExtensions
	return srv.Start(ctx)
}

// Import copies capture files into the storage directory and registers
// them in the database. Files already imported (by content hash) are
// skipped. With analyze set, each newly imported capture is analyzed
// immediately.
func Import(configPath string, paths []string, analyze, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, debug)

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, path := range paths {
		p, err := importOne(db, cfg, path)
		switch {
		case errors.Is(err, database.ErrDuplicatePcap):
			fmt.Printf("skipped   %s (already imported as id %d)\n", filepath.Base(path), p.ID)
			continue
		case err != nil:
			fmt.Printf("failed    %s: %v\n", filepath.Base(path), err)
			continue
		default:
			fmt.Printf("imported  %s (id %d, %s)\n", p.Filename, p.ID, database.FormatBytes(p.SizeBytes))
		}
		if analyze {
			if err := runStoredAnalysis(ctx, cfg, db, p, false, logger); err != nil {
				fmt.Printf("analysis failed for %s: %v\n", p.Filename, err)
			}
		}
	}
	return nil
}

func importOne(db *database.DB, cfg *config.Config, path string) (*database.PcapFile, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !cfg.Storage.Allowed(ext) {
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}

	src, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.MaxFileBytes > 0 && info.Size() > cfg.Storage.MaxFileBytes {
		return nil, fmt.Errorf("file is %s, limit is %s",
			database.FormatBytes(info.Size()), database.FormatBytes(cfg.Storage.MaxFileBytes))
	}

	hasher := sha256.New()
	if _, err := io.Copy(hasher, src); err != nil {
		return nil, err
	}
	sum := hex.EncodeToString(hasher.Sum(nil))

	if existing, err := db.PcapBySHA256(sum); err == nil {
		return existing, database.ErrDuplicatePcap
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	// Stored name is content-independent so renamed uploads of the
	// same capture still dedupe on hash.
	id := uuid.NewString()
	destPath := filepath.Join(cfg.Storage.Dir, id+ext)
	if err := copyFile(src, destPath); err != nil {
		return nil, err
	}

	p := &database.PcapFile{
		UUID:       id,
		Filename:   filepath.Base(path),
		FilePath:   destPath,
		SHA256:     sum,
		SizeBytes:  info.Size(),
		UploadedAt: time.Now().UTC(),
	}
	created, err := db.CreatePcap(p)
	if err != nil {
		os.Remove(destPath)
		return created, err
	}
	return created, nil
}

func copyFile(src *os.File, destPath string) error {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}
	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(destPath)
		return err
	}
	return dst.Close()
}

// Analyze runs a one-off analysis. The target is either a numeric pcap
// id (results are stored like a queued run) or a path to a capture
// file (results are printed as JSON and nothing touches the database).
// With all set the profiler's selection is bypassed and every analyzer
// runs.
func Analyze(configPath, target string, all, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if id, err := strconv.ParseUint(target, 10, 32); err == nil {
		return analyzeStored(ctx, cfg, uint(id), all, logger)
	}
	return analyzeFile(ctx, cfg, target, all, logger)
}

func analyzeFile(ctx context.Context, cfg *config.Config, path string, all bool, logger *log.Logger) error {
	report, err := jobs.AnalyzeFile(ctx, path, cfg.Analysis.MaxPackets, all, logger)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func analyzeStored(ctx context.Context, cfg *config.Config, pcapID uint, all bool, logger *log.Logger) error {
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	p, err := db.PcapByID(pcapID)
	if err != nil {
		return fmt.Errorf("pcap %d: %w", pcapID, err)
	}
	return runStoredAnalysis(ctx, cfg, db, p, all, logger)
}

func runStoredAnalysis(ctx context.Context, cfg *config.Config, db *database.DB, p *database.PcapFile, all bool, logger *log.Logger) error {
	run, err := db.CreateAnalysis(p.ID)
	if err != nil {
		return err
	}
	if err := db.MarkRunning(run.ID); err != nil {
		return err
	}

	started := time.Now()
	report, err := jobs.AnalyzeFile(ctx, p.FilePath, cfg.Analysis.MaxPackets, all, logger)
	if err != nil {
		db.MarkError(run.ID, err)
		return fmt.Errorf("analysis failed: %w", err)
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
	if err := db.MarkOK(run.ID, result); err != nil {
		return fmt.Errorf("store result: %w", err)
	}

	fmt.Printf("Analysis %d completed for %s\n", run.ID, p.Filename)
	fmt.Printf("  Packets:  %d\n", report.TotalPackets)
	fmt.Printf("  Devices:  %d (%d APs, %d clients)\n", report.UniqueDevices, report.UniqueAPs, report.UniqueClients)
	fmt.Printf("  SSIDs:    %d\n", report.SSIDCount)
	fmt.Printf("  Pattern:  %s\n", report.Profile.Pattern)
	for _, insight := range report.Insights {
		fmt.Printf("  - %s\n", insight)
	}
	return nil
}

// Inspect displays imported pcaps and their latest analysis runs.
// Status filters on the latest run's state, since drops captures
// uploaded before the cutoff, limit caps the number of rows.
func Inspect(configPath string, limit int, status string, since time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	pcaps, err := db.ListPcaps()
	if err != nil {
		return fmt.Errorf("failed to list pcaps: %w", err)
	}
	if len(pcaps) == 0 {
		fmt.Println("No captures imported yet.")
		return nil
	}

	var cutoff time.Time
	if since > 0 {
		cutoff = time.Now().UTC().Add(-since)
	}

	fmt.Println("ID    Filename                         Size     Uploaded             Status    Packets  Pattern")
	fmt.Println("----- -------------------------------- -------- -------------------- --------- -------- ----------------")

	shown := 0
	for _, p := range pcaps {
		if !cutoff.IsZero() && p.UploadedAt.Before(cutoff) {
			continue
		}

		rowStatus, packets, pattern := "-", "-", "-"
		if latest, err := db.LatestAnalysis(p.ID); err == nil {
			rowStatus = string(latest.Status)
			if latest.Status == database.StatusOK {
				packets = strconv.FormatInt(latest.TotalPackets, 10)
				if tp, ok := latest.Details["traffic_profile"].(map[string]any); ok {
					if pat, ok := tp["pattern"].(string); ok {
						pattern = pat
					}
				}
			}
		}
		if status != "" && rowStatus != status {
			continue
		}

		fmt.Printf("%-5d %-32s %-8s %-20s %-9s %-8s %s\n",
			p.ID,
			truncateString(p.Filename, 32),
			database.FormatBytes(p.SizeBytes),
			p.UploadedAt.Format("2006-01-02 15:04:05"),
			rowStatus,
			packets,
			pattern,
		)
		shown++
		if limit > 0 && shown >= limit {
			break
		}
	}
	if shown == 0 {
		fmt.Println("(no captures match the filters)")
	}

	stats, err := db.GetStats()
	if err != nil {
		return nil
	}
	fmt.Printf("\n%d captures (%s), %d analysis runs\n", stats.PcapCount, stats.TotalPcapSize, stats.AnalysisCount)
	return nil
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
