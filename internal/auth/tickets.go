package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// defaultTicketTTL bounds how long an issued ticket stays redeemable.
// Browsers open the websocket immediately after fetching a ticket, so
// the window only needs to cover one round trip.
const defaultTicketTTL = 30 * time.Second

// TicketStore issues single-use, short-lived tickets for websocket
// authentication. Browsers cannot set an Authorization header on a
// websocket upgrade, so the client first trades its JWT for a ticket
// over HTTPS and passes the ticket as a query parameter instead.
type TicketStore struct {
	mu      sync.Mutex
	tickets map[string]time.Time
	ttl     time.Duration
}

// NewTicketStore creates a store with the given ticket lifetime.
// A non-positive ttl selects the default.
func NewTicketStore(ttl time.Duration) *TicketStore {
	if ttl <= 0 {
		ttl = defaultTicketTTL
	}
	return &TicketStore{
		tickets: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// Issue creates a new ticket. Expired tickets are pruned on each issue,
// keeping the store bounded without a background sweeper.
func (s *TicketStore) Issue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating ticket: %w", err)
	}
	ticket := hex.EncodeToString(b)

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, expiry := range s.tickets {
		if now.After(expiry) {
			delete(s.tickets, t)
		}
	}
	s.tickets[ticket] = now.Add(s.ttl)
	return ticket, nil
}

// Redeem consumes a ticket. A ticket can be redeemed exactly once and
// only before it expires; anything else returns ErrTicketInvalid.
func (s *TicketStore) Redeem(ticket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.tickets[ticket]
	if !ok {
		return ErrTicketInvalid
	}
	delete(s.tickets, ticket)

	if time.Now().After(expiry) {
		return fmt.Errorf("%w: expired", ErrTicketInvalid)
	}
	return nil
}

// Len returns the number of outstanding tickets.
func (s *TicketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}
