package analysis

import (
	"github.com/wifientist/pawketeer/internal/dot11"
)

// HandshakePMKID tracks WPA 4-way handshakes per AP/station pair and
// collects PMKIDs leaked in the first message. A complete handshake or
// a PMKID is enough material for an offline dictionary attack, which
// is worth knowing when reviewing a capture of your own network.
type HandshakePMKID struct {
	pairs map[string]*handshakeState
}

type handshakeState struct {
	AP       string `json:"ap"`
	Station  string `json:"station"`
	Messages [4]int `json:"messages"` // count per message 1-4
	PMKID    string `json:"pmkid,omitempty"`
}

func NewHandshakePMKID() *HandshakePMKID {
	return &HandshakePMKID{pairs: map[string]*handshakeState{}}
}

func (a *HandshakePMKID) Name() string { return NameHandshakePMKID }

func (a *HandshakePMKID) Process(f *dot11.Frame) {
	if f.EAPOL == nil || f.EAPOL.Message == 0 {
		return
	}

	// Messages 1 and 3 come from the AP, 2 and 4 from the station.
	ap, station := f.Addr2, f.Addr1
	if f.EAPOL.Message == 2 || f.EAPOL.Message == 4 {
		ap, station = f.Addr1, f.Addr2
	}
	if ap == "" || station == "" {
		return
	}

	key := ap + "|" + station
	st, ok := a.pairs[key]
	if !ok {
		st = &handshakeState{AP: ap, Station: station}
		a.pairs[key] = st
	}
	st.Messages[f.EAPOL.Message-1]++
	if f.EAPOL.PMKID != "" && st.PMKID == "" {
		st.PMKID = f.EAPOL.PMKID
	}
}

// complete means all four messages were seen at least once.
func (s *handshakeState) complete() bool {
	for _, n := range s.Messages {
		if n == 0 {
			return false
		}
	}
	return true
}

// crackable means enough material for offline key recovery: either a
// PMKID or messages 1+2 (the pair that binds the nonces).
func (s *handshakeState) crackable() bool {
	return s.PMKID != "" || (s.Messages[0] > 0 && s.Messages[1] > 0)
}

func (a *HandshakePMKID) Result() map[string]any {
	var pairs []handshakeState
	complete, crackable, pmkids := 0, 0, 0

	for _, key := range sortedKeys(a.pairs) {
		st := a.pairs[key]
		pairs = append(pairs, *st)
		if st.complete() {
			complete++
		}
		if st.crackable() {
			crackable++
		}
		if st.PMKID != "" {
			pmkids++
		}
	}

	return map[string]any{
		"handshake_pairs":     pairs,
		"pair_count":          len(pairs),
		"complete_handshakes": complete,
		"crackable_pairs":     crackable,
		"pmkids_captured":     pmkids,
	}
}
