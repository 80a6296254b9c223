package domain

import "time"

// HistoryEntry is an immutable audit record appended on every mutating
// ticket operation. The actor name is a snapshot taken at write time so
// the trail survives later renames in the user directory.
type HistoryEntry struct {
	At                time.Time    `json:"at"`
	ActorID           string       `json:"actor_id"`
	ActorName         string       `json:"actor_name"`
	From              TicketStatus `json:"from"`
	To                TicketStatus `json:"to"`
	Comment           string       `json:"comment,omitempty"`
	MaterialNeeded    string       `json:"material_needed,omitempty"`
	Resolution        string       `json:"resolution,omitempty"`
	ResolutionMinutes *int64       `json:"resolution_minutes,omitempty"`
}
