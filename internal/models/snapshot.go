package models

// Snapshot is the persisted tracking state of the status pipeline: ticket id
// mapped to the status last observed for it. Absence of a key means the
// ticket is not yet tracked or was pruned after leaving the windowed read.
type Snapshot map[string]Status

// Clone returns an independent copy. A nil snapshot clones to an empty one.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, status := range s {
		out[id] = status
	}
	return out
}
