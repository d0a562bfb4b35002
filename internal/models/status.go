package models

import "strings"

// Status is the lifecycle state of a warranty ticket, as staff maintain it in
// the Estado column of the workbook. Values are the Spanish labels used in
// the sheets; they are data shared with the spreadsheet, not display strings.
type Status string

const (
	// StatusReceived is the initial state assigned at intake. It never
	// triggers a client notification.
	StatusReceived Status = "Recibida"
	// StatusInProgress marks a claim being worked on. Notifiable.
	StatusInProgress Status = "Tramitada"
	// StatusAccepted is a terminal, notifiable state.
	StatusAccepted Status = "Aceptada"
	// StatusRejected is a terminal, notifiable state.
	StatusRejected Status = "Denegada"
)

// ParseStatus canonicalizes a raw Estado cell value. Surrounding whitespace
// is dropped and casing is folded onto the canonical labels. Unknown values
// are returned trimmed with ok=false.
func ParseStatus(raw string) (Status, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, s := range []Status{StatusReceived, StatusInProgress, StatusAccepted, StatusRejected} {
		if strings.EqualFold(trimmed, string(s)) {
			return s, true
		}
	}
	return Status(trimmed), false
}

// Known reports whether s is one of the canonical lifecycle states.
func (s Status) Known() bool {
	switch s {
	case StatusReceived, StatusInProgress, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Notifiable reports whether observing s requires a client notification.
func (s Status) Notifiable() bool {
	switch s {
	case StatusInProgress, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected after s.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}
