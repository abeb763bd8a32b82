package store

import "time"

// CollarView is a collar with its derived state and current animal.
type CollarView struct {
	ID               int64      `json:"id"`
	Code             string     `json:"code"`
	State            string     `json:"state"`
	Battery          *float64   `json:"battery"`
	LastActivity     *time.Time `json:"lastActivity"`
	AnimalID         *int64     `json:"animalId"`
	AnimalIdentifier *string    `json:"animalIdentifier"`
	AnimalName       *string    `json:"animalName"`
	AssignedAt       *time.Time `json:"assignedAt"`
}

// CollarFilter narrows ListCollars and ExportRows. Empty fields do not filter.
type CollarFilter struct {
	// Search matches the collar code or the current animal identifier.
	Search string
	State  string
	IDs    []int64
	Limit  int
	Offset int
}

// ExportRow is one line of the collar export, shaped like an import row.
type ExportRow struct {
	Code             string
	AnimalIdentifier string
}

// HistoryEntry is one assignment of a collar.
type HistoryEntry struct {
	AssignmentID     int64      `json:"assignmentId"`
	AnimalID         int64      `json:"animalId"`
	AnimalIdentifier string     `json:"animalIdentifier"`
	AnimalName       string     `json:"animalName"`
	ActorID          *int64     `json:"actorId"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt"`
}
