// Package statusdiff detects meaningful status transitions between
// successive runs of the status pipeline. The engine only observes: staff
// drive every transition by editing the workbook, and the engine decides
// which observations require a client notification while guaranteeing a
// transition is never notified twice across runs.
package statusdiff

import (
	"log"
	"sort"
	"strings"

	"github.com/proffectiv/warrantyflow/internal/models"
)

// Result of one diff run.
type Result struct {
	// Changes lists every transition requiring a notification, in input
	// order.
	Changes []models.StatusChange
	// Next is the snapshot to persist after this run.
	Next models.Snapshot
	// Pruned lists ticket ids dropped from the snapshot because their
	// record left the windowed read, sorted for stable logging.
	Pruned []string
	// Evaluated counts records that passed the required-field check;
	// Skipped counts those excluded for missing ticket id or email.
	Evaluated int
	Skipped   int
}

// Engine computes diffs. Construct with NewEngine.
type Engine struct {
	logger *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the package logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine builds an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: log.New(log.Writer(), "[STATUSDIFF] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Diff evaluates the current read against the previous snapshot.
//
// Per record: a ticket missing its id or email is excluded entirely (it
// cannot be notified and must not create tracking state; an entry it already
// has carries over untouched). An untracked ticket is notified only when
// observed in a notifiable state, which also creates its entry; untracked
// tickets in Recibida or an unrecognized state stay untracked. A tracked
// ticket is notified when its status changed to a notifiable one; any
// change, notifiable or not, updates the entry to the observed value so a
// later re-advance is treated as a fresh transition. Unchanged tickets are
// carried silently.
//
// Entries whose ticket no longer appears in the read at all are pruned.
// Terminal entries therefore persist while their row is live, which is what
// suppresses repeat terminal notifications on later runs; they fall out once
// staff archive the row or it ages past the caller's read window.
//
// Diff never mutates prev and performs no I/O: sending and persisting are
// the caller's responsibility, and the returned snapshot is valid to persist
// regardless of how many notifications later fail.
func (e *Engine) Diff(records []models.WarrantyRecord, prev models.Snapshot) Result {
	res := Result{Next: make(models.Snapshot, len(records))}

	seen := make(map[string]bool, len(records))
	excluded := make(map[string]bool)

	for i := range records {
		rec := &records[i]
		id := strings.TrimSpace(rec.TicketID)

		if !rec.Notifiable() {
			res.Skipped++
			if id != "" {
				excluded[id] = true
			}
			continue
		}
		if seen[id] {
			e.logger.Printf("duplicate ticket id %s in read, keeping first occurrence", id)
			continue
		}
		seen[id] = true
		res.Evaluated++

		cur, _ := models.ParseStatus(string(rec.Status))
		prevStatus, tracked := prev[id]

		switch {
		case !tracked:
			if cur.Notifiable() {
				res.Changes = append(res.Changes, models.StatusChange{Record: *rec, Current: cur})
				res.Next[id] = cur
			}
		case cur == prevStatus:
			res.Next[id] = prevStatus
		default:
			if cur.Notifiable() {
				res.Changes = append(res.Changes, models.StatusChange{Record: *rec, Previous: prevStatus, Current: cur})
			}
			res.Next[id] = cur
		}
	}

	for id, status := range prev {
		if _, kept := res.Next[id]; kept {
			continue
		}
		if excluded[id] {
			res.Next[id] = status
			continue
		}
		res.Pruned = append(res.Pruned, id)
	}
	sort.Strings(res.Pruned)

	return res
}
