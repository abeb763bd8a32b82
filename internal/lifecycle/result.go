package lifecycle

import (
	"fmt"
	"strings"
)

// AnimalRef identifies an animal in a lifecycle result.
type AnimalRef struct {
	ID         int64  `json:"id"`
	Identifier string `json:"identifier"`
	Name       string `json:"name,omitempty"`
}

// AssignResult describes what an assign or unassign call changed.
type AssignResult struct {
	CollarCode string `json:"collarCode"`
	// AssignedTo is the animal the collar is attached to after the call.
	AssignedTo *AnimalRef `json:"assignedTo,omitempty"`
	// UnassignedFrom is the animal the collar was detached from, if any.
	UnassignedFrom *AnimalRef `json:"unassignedFrom,omitempty"`
	// ReplacedCollarCode is the collar previously worn by the target animal.
	ReplacedCollarCode string `json:"replacedCollarCode,omitempty"`
	Changed            bool   `json:"changed"`
}

// Summary renders the result as a short human-readable message.
func (r AssignResult) Summary() string {
	if !r.Changed {
		return "no changes"
	}
	var parts []string
	if r.UnassignedFrom != nil {
		parts = append(parts, fmt.Sprintf("unassigned from %s", r.UnassignedFrom.Identifier))
	}
	if r.AssignedTo != nil {
		parts = append(parts, fmt.Sprintf("assigned to %s", r.AssignedTo.Identifier))
	}
	if r.ReplacedCollarCode != "" {
		parts = append(parts, fmt.Sprintf("replaced collar %s", r.ReplacedCollarCode))
	}
	if len(parts) == 0 {
		return "updated"
	}
	return strings.Join(parts, "; ")
}

// BatchResult reports the codes created by CreateBatch.
type BatchResult struct {
	FirstCode string   `json:"firstCode"`
	LastCode  string   `json:"lastCode"`
	Count     int      `json:"count"`
	Codes     []string `json:"codes"`
}
