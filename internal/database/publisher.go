// Pawketeer - Event Publisher Interface
// This provides a decoupled way for the analysis runner to publish
// lifecycle updates to WebSocket clients
package database

// AnalysisEvent is pushed to subscribers whenever a run changes state
type AnalysisEvent struct {
	Type     string `json:"type"` // queued, running, completed, failed
	PcapID   uint   `json:"pcap_id"`
	RunID    uint   `json:"run_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// EventPublisher defines an interface for publishing events to subscribers
type EventPublisher interface {
	PublishEvent(event AnalysisEvent)
}

// Global event publisher (set by web server)
var globalPublisher EventPublisher

// SetEventPublisher sets the global event publisher
func SetEventPublisher(p EventPublisher) {
	globalPublisher = p
}

// PublishEvent publishes an event to the global publisher if set
func PublishEvent(event AnalysisEvent) {
	if globalPublisher != nil {
		globalPublisher.PublishEvent(event)
	}
}
