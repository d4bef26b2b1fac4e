package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AnalysisStatus tracks an analysis run through its lifecycle
type AnalysisStatus string

const (
	StatusPending AnalysisStatus = "pending"
	StatusRunning AnalysisStatus = "running"
	StatusOK      AnalysisStatus = "ok"
	StatusError   AnalysisStatus = "error"
)

// Active reports whether the status still occupies the analysis slot
// for its capture.
func (s AnalysisStatus) Active() bool {
	return s == StatusPending || s == StatusRunning
}

// JSONMap stores arbitrary JSON documents in a TEXT column
type JSONMap map[string]any

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// PcapFile is an imported capture file
type PcapFile struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       string    `gorm:"uniqueIndex;not null" json:"uuid"`
	Filename   string    `gorm:"index;not null" json:"filename"`
	FilePath   string    `gorm:"not null" json:"file_path"`
	SHA256     string    `gorm:"uniqueIndex;not null" json:"sha256"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `gorm:"index" json:"uploaded_at"`
}

// PcapAnalysis is one analysis run over a capture file. FrameMix and
// Details hold the engine output as JSON so the result schema can grow
// without migrations.
type PcapAnalysis struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	PcapID      uint           `gorm:"index;not null" json:"pcap_id"`
	Status      AnalysisStatus `gorm:"index;not null" json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMS  int64          `json:"duration_ms"`

	TotalPackets  int64 `json:"total_packets"`
	UniqueDevices int   `json:"unique_devices"`
	UniqueAPs     int   `gorm:"column:unique_aps" json:"unique_aps"`
	UniqueClients int   `json:"unique_clients"`
	SSIDCount     int   `gorm:"column:ssid_count" json:"ssid_count"`

	FrameMix JSONMap `gorm:"type:text" json:"frame_mix,omitempty"`
	Details  JSONMap `gorm:"type:text" json:"details,omitempty"`
}
