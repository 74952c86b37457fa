package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/julianstephens/agencydesk/internal/models"
)

// ConflictType represents the type of integrity conflict
type ConflictType string

const (
	ConflictDanglingEventRef ConflictType = "dangling_event_ref"
	ConflictOrphanEvent      ConflictType = "orphan_event"
	ConflictUnknownPackage   ConflictType = "unknown_package"
	ConflictSharedEvent      ConflictType = "shared_event"
)

// Conflict represents a detected inconsistency between clients and the calendar
type Conflict struct {
	Type         ConflictType
	Description  string
	ClientID     string
	AssignmentID string
	EventIDs     []string
}

// IntegrityResult contains all detected conflicts
type IntegrityResult struct {
	Conflicts []Conflict
}

// HasConflicts returns true if there are any conflicts
func (r *IntegrityResult) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// Count returns the number of conflicts of the given type
func (r *IntegrityResult) Count(t ConflictType) int {
	n := 0
	for _, c := range r.Conflicts {
		if c.Type == t {
			n++
		}
	}
	return n
}

// FormatReport returns a human-readable report of all conflicts
func (r *IntegrityResult) FormatReport() string {
	if !r.HasConflicts() {
		return "No integrity problems detected."
	}

	var b strings.Builder
	b.WriteString("Integrity problems detected:\n")
	for _, c := range r.Conflicts {
		fmt.Fprintf(&b, "- %s\n", c.Description)
	}
	return b.String()
}

// CheckIntegrity cross-checks package assignments against the calendar. It
// finds assignments that reference missing events, generated events that no
// assignment owns, assignments of packages no longer in the catalog, and
// events claimed by more than one assignment.
//
// Unknown packages are reported but are not an error: assignments keep a weak
// reference and survive catalog edits until the package itself is deleted.
func CheckIntegrity(clients []models.Client, packages []models.PackageDefinition, events []models.CalendarEvent) IntegrityResult {
	var result IntegrityResult

	eventIDs := make(map[string]bool, len(events))
	for _, e := range events {
		eventIDs[e.ID] = true
	}
	packageIDs := make(map[string]bool, len(packages))
	for _, p := range packages {
		packageIDs[p.ID] = true
	}

	owners := make(map[string][]string)
	for _, c := range clients {
		for _, a := range c.PackageAssignments {
			var missing []string
			for _, id := range a.CalendarEventIDs {
				owners[id] = append(owners[id], a.ID)
				if !eventIDs[id] {
					missing = append(missing, id)
				}
			}
			if len(missing) > 0 {
				result.Conflicts = append(result.Conflicts, Conflict{
					Type:         ConflictDanglingEventRef,
					Description:  fmt.Sprintf("assignment %s of client %q references %d missing event(s)", a.ID, c.Name, len(missing)),
					ClientID:     c.ID,
					AssignmentID: a.ID,
					EventIDs:     missing,
				})
			}
			if !packageIDs[a.PackageID] {
				result.Conflicts = append(result.Conflicts, Conflict{
					Type:         ConflictUnknownPackage,
					Description:  fmt.Sprintf("assignment %s of client %q uses package %s which is not in the catalog", a.ID, c.Name, a.PackageID),
					ClientID:     c.ID,
					AssignmentID: a.ID,
				})
			}
		}
	}

	var orphans []string
	for _, e := range events {
		if e.AutoGenerated && len(owners[e.ID]) == 0 {
			orphans = append(orphans, e.ID)
		}
	}
	if len(orphans) > 0 {
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:        ConflictOrphanEvent,
			Description: fmt.Sprintf("%d generated event(s) are not owned by any assignment", len(orphans)),
			EventIDs:    orphans,
		})
	}

	shared := make([]string, 0)
	for id, as := range owners {
		if len(as) > 1 {
			shared = append(shared, id)
		}
	}
	sort.Strings(shared)
	for _, id := range shared {
		result.Conflicts = append(result.Conflicts, Conflict{
			Type:        ConflictSharedEvent,
			Description: fmt.Sprintf("event %s is listed on %d assignments", id, len(owners[id])),
			EventIDs:    []string{id},
		})
	}

	return result
}
