package database

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Sentinel errors for callers that map failures to API responses.
var (
	ErrNotFound           = errors.New("not found")
	ErrAnalysisInProgress = errors.New("analysis already in progress")
	ErrDuplicatePcap      = errors.New("pcap already imported")
)

// CreatePcap stores a new capture file record. A file whose content
// hash is already known is refused so re-imports stay idempotent; in
// that case the existing record is returned alongside
// ErrDuplicatePcap so the caller can point the user at it.
func (db *DB) CreatePcap(p *PcapFile) (*PcapFile, error) {
	var existing PcapFile
	err := db.Where("sha256 = ?", p.SHA256).First(&existing).Error
	if err == nil {
		return &existing, fmt.Errorf("%w: %s (id %d)", ErrDuplicatePcap, existing.Filename, existing.ID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err := db.Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// PcapByID fetches one capture record.
func (db *DB) PcapByID(id uint) (*PcapFile, error) {
	var p PcapFile
	if err := db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// PcapBySHA256 fetches a capture by content hash.
func (db *DB) PcapBySHA256(sum string) (*PcapFile, error) {
	var p PcapFile
	if err := db.Where("sha256 = ?", sum).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListPcaps returns captures newest first.
func (db *DB) ListPcaps() ([]PcapFile, error) {
	var pcaps []PcapFile
	if err := db.Order("uploaded_at DESC, id DESC").Find(&pcaps).Error; err != nil {
		return nil, err
	}
	return pcaps, nil
}

// CreateAnalysis queues a new analysis run. Each capture may hold at
// most one pending or running analysis at a time.
func (db *DB) CreateAnalysis(pcapID uint) (*PcapAnalysis, error) {
	var analysis *PcapAnalysis
	err := db.Transaction(func(tx *gorm.DB) error {
		var pcap PcapFile
		if err := tx.First(&pcap, pcapID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var active int64
		if err := tx.Model(&PcapAnalysis{}).
			Where("pcap_id = ? AND status IN ?", pcapID, []AnalysisStatus{StatusPending, StatusRunning}).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrAnalysisInProgress
		}

		analysis = &PcapAnalysis{
			PcapID:    pcapID,
			Status:    StatusPending,
			CreatedAt: time.Now().UTC(),
		}
		return tx.Create(analysis).Error
	})
	if err != nil {
		return nil, err
	}
	return analysis, nil
}

// AnalysisByID fetches one analysis run.
func (db *DB) AnalysisByID(id uint) (*PcapAnalysis, error) {
	var a PcapAnalysis
	if err := db.First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// LatestAnalysis returns the most recent analysis for a capture.
func (db *DB) LatestAnalysis(pcapID uint) (*PcapAnalysis, error) {
	var a PcapAnalysis
	err := db.Where("pcap_id = ?", pcapID).
		Order("created_at DESC, id DESC").
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// AnalysesForPcap returns every run for a capture, newest first.
func (db *DB) AnalysesForPcap(pcapID uint) ([]PcapAnalysis, error) {
	var runs []PcapAnalysis
	err := db.Where("pcap_id = ?", pcapID).
		Order("created_at DESC, id DESC").
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// MarkRunning transitions a pending analysis to running.
func (db *DB) MarkRunning(id uint) error {
	now := time.Now().UTC()
	return db.Model(&PcapAnalysis{}).Where("id = ?", id).Updates(map[string]any{
		"status":     StatusRunning,
		"started_at": &now,
	}).Error
}

// MarkOK records a completed analysis with its results.
func (db *DB) MarkOK(id uint, result *PcapAnalysis) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":         StatusOK,
		"completed_at":   &now,
		"duration_ms":    result.DurationMS,
		"total_packets":  result.TotalPackets,
		"unique_devices": result.UniqueDevices,
		"unique_aps":     result.UniqueAPs,
		"unique_clients": result.UniqueClients,
		"ssid_count":     result.SSIDCount,
		"frame_mix":      result.FrameMix,
		"details":        result.Details,
	}
	return db.Model(&PcapAnalysis{}).Where("id = ?", id).Updates(updates).Error
}

// MarkError records a failed analysis. The run still reaches a
// terminal state so the capture's analysis slot frees up.
func (db *DB) MarkError(id uint, cause error) error {
	now := time.Now().UTC()
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return db.Model(&PcapAnalysis{}).Where("id = ?", id).Updates(map[string]any{
		"status":       StatusError,
		"error":        msg,
		"completed_at": &now,
	}).Error
}

// ResetStale flips pending or running analyses to error. Called at
// startup so runs orphaned by a crash do not block their captures
// forever.
func (db *DB) ResetStale() (int64, error) {
	now := time.Now().UTC()
	result := db.Model(&PcapAnalysis{}).
		Where("status IN ?", []AnalysisStatus{StatusPending, StatusRunning}).
		Updates(map[string]any{
			"status":       StatusError,
			"error":        "interrupted by service restart",
			"completed_at": &now,
		})
	return result.RowsAffected, result.Error
}

// PruneAnalyses deletes completed runs older than the cutoff and
// returns how many were removed.
func (db *DB) PruneAnalyses(olderThan time.Time) (int64, error) {
	result := db.Where("status IN ? AND created_at < ?",
		[]AnalysisStatus{StatusOK, StatusError}, olderThan).
		Delete(&PcapAnalysis{})
	return result.RowsAffected, result.Error
}

// Stats summarizes the stored captures and analysis runs.
type Stats struct {
	PcapCount      int64            `json:"pcap_count"`
	TotalPcapBytes int64            `json:"total_pcap_bytes"`
	TotalPcapSize  string           `json:"total_pcap_size"`
	AnalysisCount  int64            `json:"analysis_count"`
	ByStatus       map[string]int64 `json:"by_status"`
}

// FormatBytes renders a byte count the way the UI shows sizes.
func FormatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1fGB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// GetStats computes storage and run counters for the stats endpoint.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{ByStatus: map[string]int64{}}

	if err := db.Model(&PcapFile{}).Count(&stats.PcapCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&PcapFile{}).Select("COALESCE(SUM(size_bytes), 0)").Scan(&stats.TotalPcapBytes).Error; err != nil {
		return nil, err
	}
	stats.TotalPcapSize = FormatBytes(stats.TotalPcapBytes)
	if err := db.Model(&PcapAnalysis{}).Count(&stats.AnalysisCount).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		Status string
		N      int64
	}
	if err := db.Model(&PcapAnalysis{}).
		Select("status, COUNT(*) as n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.ByStatus[row.Status] = row.N
	}
	return stats, nil
}
