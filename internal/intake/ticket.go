package intake

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Ticket ids are the first six bytes of a random UUID rendered as upper
// case hex, short enough for an email subject while keeping collisions
// unlikely. The store is still consulted before a draw is accepted.
const (
	ticketIDBytes    = 6
	ticketIDAttempts = 32
)

// ErrTicketIDSpace is returned when repeated draws keep landing on ids the
// store already holds.
var ErrTicketIDSpace = errors.New("intake: no free ticket id after repeated draws")

func ticketIDFrom(u uuid.UUID) string {
	return strings.ToUpper(hex.EncodeToString(u[:ticketIDBytes]))
}

// newTicketID draws ids until one is free of the taken set.
func (s *Service) newTicketID(taken map[string]bool) (string, error) {
	for i := 0; i < ticketIDAttempts; i++ {
		id := ticketIDFrom(s.newUUID())
		if !taken[id] {
			return id, nil
		}
	}
	return "", ErrTicketIDSpace
}
