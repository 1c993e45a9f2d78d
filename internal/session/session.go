// Package session holds the ABP session state of the node.
package session

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/brocaar/lorawan"
)

// Session contains the activation-by-personalisation session of the node.
// The keys and device address are fixed for the lifetime of the session,
// only the uplink frame-counter changes.
type Session struct {
	DevAddr lorawan.DevAddr
	NwkSKey lorawan.AES128Key
	AppSKey lorawan.AES128Key

	mu     sync.Mutex
	fCntUp uint16
}

// New returns a new Session.
func New(devAddr lorawan.DevAddr, nwkSKey, appSKey lorawan.AES128Key, fCntUp uint16) *Session {
	return &Session{
		DevAddr: devAddr,
		NwkSKey: nwkSKey,
		AppSKey: appSKey,
		fCntUp:  fCntUp,
	}
}

// FCntUp returns the frame-counter that will be used by the next uplink.
func (s *Session) FCntUp() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fCntUp
}

// SetFCntUp overwrites the uplink frame-counter, e.g. after restoring it
// from storage.
func (s *Session) SetFCntUp(fCnt uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fCntUp = fCnt
}

// UseFCntUp calls fn with the frame-counter for the uplink being built.
// When fn returns without error the counter is incremented, whatever
// happens to the frame afterwards. The session is locked while fn runs, so
// concurrent callers never observe the same counter value. The counter
// wraps to 0 after 65535.
func (s *Session) UseFCntUp(fn func(fCnt uint16) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(s.fCntUp); err != nil {
		return err
	}
	s.fCntUp++

	if s.fCntUp == 0 {
		log.WithField("dev_addr", s.DevAddr).Warning("session: uplink frame-counter wrapped, session keys should be renewed")
	}

	return nil
}
