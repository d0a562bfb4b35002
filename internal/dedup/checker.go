// Package dedup decides whether a newly submitted warranty claim duplicates
// a record already present in the workbook. Scoring is a weighted
// combination of per-field string similarity; the verdict is a pure function
// of the candidate and the existing record set, so callers own all side
// effects (suppressing intake, reporting the match).
package dedup

import (
	"log"

	"github.com/proffectiv/warrantyflow/internal/models"
)

// DefaultThreshold is the score at or above which a candidate is considered
// the same underlying case as an existing record.
const DefaultThreshold = 0.75

// Field weights reflect discriminating power: a matching email or product
// identifier says far more than overlapping free text. Weights sum to 1 so
// a fully identical record scores exactly 1.0.
const (
	weightEmail   = 0.40
	weightProduct = 0.35
	weightClient  = 0.10
	weightIssue   = 0.15
)

// Factor is one field's contribution to a pair score, kept for logging and
// the duplicate report shown to admins.
type Factor struct {
	Field  string  `json:"field"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// Match identifies the existing record a candidate most resembles.
type Match struct {
	TicketID string   `json:"ticket_id"`
	Score    float64  `json:"score"`
	Factors  []Factor `json:"factors"`
}

// Result is the verdict for one candidate.
type Result struct {
	// Duplicate is true when Best scored at or above the threshold.
	Duplicate bool `json:"duplicate"`
	// Best is the highest-scoring existing record, nil when there was
	// nothing to compare against.
	Best *Match `json:"best,omitempty"`
	// Threshold echoes the configured cutoff for reporting.
	Threshold float64 `json:"threshold"`
}

// Checker scores candidates against existing records. The zero value is not
// usable; construct with NewChecker.
type Checker struct {
	threshold float64
	logger    *log.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithThreshold overrides the duplicate cutoff. Values outside (0,1] fall
// back to the default.
func WithThreshold(t float64) Option {
	return func(c *Checker) {
		if t > 0 && t <= 1 {
			c.threshold = t
		}
	}
}

// WithLogger overrides the package logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChecker builds a Checker with the default threshold.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		threshold: DefaultThreshold,
		logger:    log.New(log.Writer(), "[DEDUP] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check scores candidate against every existing record and returns the best
// match with the duplicate verdict. An existing record sharing the
// candidate's ticket id is skipped (a record is never a duplicate of
// itself). With no comparable records the candidate is unique. Ties at the
// top score resolve to the earliest submission, then the smallest ticket id,
// so the presumed-canonical record wins deterministically.
func (c *Checker) Check(candidate models.WarrantyRecord, existing []models.WarrantyRecord) Result {
	res := Result{Threshold: c.threshold}

	var bestRec *models.WarrantyRecord
	for i := range existing {
		rec := &existing[i]
		if rec.TicketID != "" && rec.TicketID == candidate.TicketID {
			continue
		}
		score, factors := pairScore(&candidate, rec)
		if bestRec == nil || betterMatch(score, rec, res.Best.Score, bestRec) {
			bestRec = rec
			res.Best = &Match{TicketID: rec.TicketID, Score: score, Factors: factors}
		}
	}

	if res.Best != nil && res.Best.Score >= c.threshold {
		res.Duplicate = true
		c.logger.Printf("duplicate candidate: matches %s at %.3f (threshold %.2f)", res.Best.TicketID, res.Best.Score, c.threshold)
	}
	return res
}

// pairScore combines per-field similarities into one normalized score.
// Symmetric by construction: pairScore(a,b) == pairScore(b,a).
func pairScore(a, b *models.WarrantyRecord) (float64, []Factor) {
	factors := []Factor{
		{Field: "email", Score: fieldSimilarity(a.ClientEmail, b.ClientEmail), Weight: weightEmail},
		{Field: "product", Score: fieldSimilarity(a.ProductID, b.ProductID), Weight: weightProduct},
		{Field: "client", Score: fieldSimilarity(a.ClientName, b.ClientName), Weight: weightClient},
		{Field: "issue", Score: fieldSimilarity(a.Issue, b.Issue), Weight: weightIssue},
	}
	total := 0.0
	for _, f := range factors {
		total += f.Score * f.Weight
	}
	return total, factors
}

// betterMatch reports whether rec at score displaces the current best:
// strictly higher score, or an equal score from an earlier submission
// (then smaller ticket id as the final tie break).
func betterMatch(score float64, rec *models.WarrantyRecord, bestScore float64, best *models.WarrantyRecord) bool {
	if score != bestScore {
		return score > bestScore
	}
	if !rec.SubmittedAt.Equal(best.SubmittedAt) {
		return rec.SubmittedAt.Before(best.SubmittedAt)
	}
	return rec.TicketID < best.TicketID
}
