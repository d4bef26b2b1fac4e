package web

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wifientist/pawketeer/internal/database"
	"github.com/wifientist/pawketeer/internal/jobs"
)

// AllowedExtensions is the default set of capture file types the
// importer accepts. The config file can override it.
var AllowedExtensions = []string{".pcap", ".pcapng", ".cap"}

// AnalysisQueue is how the API hands work to the analysis pool.
type AnalysisQueue interface {
	Enqueue(p *database.PcapFile) (*database.PcapAnalysis, error)
}

// Server serves the pawketeer HTTP API
type Server struct {
	db           *database.DB
	addr         string
	server       *http.Server
	logger       *log.Logger
	version      string
	maxFileBytes int64
	queue        AnalysisQueue
	hub          *Hub

	// ReadTimeout and WriteTimeout apply to the underlying http.Server.
	// Zero leaves them unset.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Extensions are the capture file types reported to clients.
	Extensions []string
}

// NewServer creates a new web server instance
func NewServer(db *database.DB, addr string, queue AnalysisQueue, logger *log.Logger, version string, maxFileBytes int64) *Server {
	hub := NewHub(logger)
	go hub.Run()

	return &Server{
		db:           db,
		addr:         addr,
		logger:       logger,
		version:      version,
		maxFileBytes: maxFileBytes,
		queue:        queue,
		hub:          hub,
		Extensions:   AllowedExtensions,
	}
}

// Handler builds the route table. Split out from Start so tests can
// drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /config", s.handleConfig)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /pcaps/list", s.handlePcapList)
	mux.HandleFunc("GET /pcaps/{id}/combo", s.handlePcapCombo)
	mux.HandleFunc("POST /pcaps/{id}/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /pcaps/{id}/analysis/latest", s.handleLatestAnalysis)
	mux.HandleFunc("GET /ws", s.hub.ServeWs)

	return s.loggingMiddleware(corsMiddleware(mux))
}

// Start starts the web server
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
	}

	s.logger.Info("Starting web server", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// corsMiddleware adds CORS headers for development
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs all incoming HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)

		s.logger.Info("API request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lrw.statusCode,
			"duration", time.Since(start).Round(time.Microsecond),
		)
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Hijack implements http.Hijacker for WebSocket support
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := lrw.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("ResponseWriter does not implement http.Hijacker")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError matches the error envelope the frontend already expects.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// pcapID pulls the {id} path segment.
func pcapID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	if sqlDB, err := s.db.DB.DB(); err != nil || sqlDB.Ping() != nil {
		dbStatus = "error"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"app":      "pawketeer",
		"version":  s.version,
		"database": dbStatus,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"app":                "pawketeer",
		"version":            s.version,
		"max_file_bytes":     s.maxFileBytes,
		"allowed_extensions": s.Extensions,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		s.logger.Error("Failed to compute stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// pcapWithLatest is one row of the list endpoint.
type pcapWithLatest struct {
	database.PcapFile
	LatestAnalysis *database.PcapAnalysis `json:"latest_analysis"`
}

func (s *Server) handlePcapList(w http.ResponseWriter, r *http.Request) {
	pcaps, err := s.db.ListPcaps()
	if err != nil {
		s.logger.Error("Failed to list pcaps", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list pcaps")
		return
	}

	rows := make([]pcapWithLatest, 0, len(pcaps))
	for _, p := range pcaps {
		row := pcapWithLatest{PcapFile: p}
		latest, err := s.db.LatestAnalysis(p.ID)
		if err == nil {
			row.LatestAnalysis = latest
		} else if !errors.Is(err, database.ErrNotFound) {
			s.logger.Error("Failed to load latest analysis", "pcap", p.ID, "error", err)
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handlePcapCombo(w http.ResponseWriter, r *http.Request) {
	id, ok := pcapID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid pcap id")
		return
	}
	p, err := s.db.PcapByID(id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Pcap not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load pcap")
		return
	}

	var runs []database.PcapAnalysis
	if r.URL.Query().Get("latest_only") == "true" {
		latest, err := s.db.LatestAnalysis(id)
		if err == nil {
			runs = []database.PcapAnalysis{*latest}
		} else if !errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusInternalServerError, "failed to load analyses")
			return
		}
	} else {
		runs, err = s.db.AnalysesForPcap(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load analyses")
			return
		}
	}
	if runs == nil {
		runs = []database.PcapAnalysis{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pcap":     p,
		"analyses": runs,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id, ok := pcapID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid pcap id")
		return
	}
	p, err := s.db.PcapByID(id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Pcap not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load pcap")
		return
	}

	run, err := s.queue.Enqueue(p)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrAnalysisInProgress):
			// Not an error for the client: hand back the run that is
			// already underway so the UI can follow it.
			latest, lerr := s.db.LatestAnalysis(id)
			if lerr != nil {
				s.logger.Error("Failed to load active analysis", "pcap", id, "error", lerr)
				writeError(w, http.StatusInternalServerError, "failed to load analysis")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"analysis_id": latest.ID,
				"pcap_id":     p.ID,
				"status":      latest.Status,
				"message":     "Already in progress",
			})
		case errors.Is(err, jobs.ErrQueueFull):
			writeError(w, http.StatusServiceUnavailable, "analysis queue full, retry later")
		default:
			s.logger.Error("Failed to queue analysis", "pcap", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to queue analysis")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"analysis_id": run.ID,
		"pcap_id":     p.ID,
		"status":      run.Status,
	})
}

func (s *Server) handleLatestAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := pcapID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid pcap id")
		return
	}
	if _, err := s.db.PcapByID(id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Pcap not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load pcap")
		return
	}

	latest, err := s.db.LatestAnalysis(id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No analysis yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}
