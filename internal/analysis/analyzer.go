package analysis

import (
	"sort"

	"github.com/wifientist/pawketeer/internal/dot11"
)

// Analyzer names used in suggestions, selection and result keys.
const (
	NameDeauthDisassoc = "deauth_disassoc"
	NameEvilTwin       = "evil_twin"
	NameProbePrivacy   = "probe_privacy"
	NameWeakSecurity   = "weak_security"
	NameHandshakePMKID = "handshake_pmkid"
)

// Analyzer consumes frames one at a time and reports findings at the
// end of the pass. Implementations keep their own state and are not
// safe for concurrent use.
type Analyzer interface {
	Name() string
	Process(f *dot11.Frame)
	Result() map[string]any
}

// newAnalyzer builds a fresh analyzer by name.
func newAnalyzer(name string) Analyzer {
	switch name {
	case NameDeauthDisassoc:
		return NewDeauthDisassoc()
	case NameEvilTwin:
		return NewEvilTwin()
	case NameProbePrivacy:
		return NewProbePrivacy()
	case NameWeakSecurity:
		return NewWeakSecurity()
	case NameHandshakePMKID:
		return NewHandshakePMKID()
	}
	return nil
}

// sortedKeys gives deterministic iteration order for result maps.
func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
