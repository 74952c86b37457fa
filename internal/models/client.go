package models

// ClientStatus is the pipeline stage of a client.
type ClientStatus string

const (
	ClientLead     ClientStatus = "lead"
	ClientActive   ClientStatus = "active"
	ClientPaused   ClientStatus = "paused"
	ClientArchived ClientStatus = "archived"
)

type Client struct {
	ID                 string       `json:"id" validate:"required"`
	Name               string       `json:"name" validate:"required"`
	Status             ClientStatus `json:"status" validate:"omitempty,oneof=lead active paused archived"`
	Revenue            float64      `json:"revenue" validate:"gte=0"`
	PackageAssignments []Assignment `json:"packageAssignments"`
}

func (c Client) Key() string { return c.ID }

// Assignment links a client to a package and owns the calendar events
// generated for it. Only the cascade manager creates assignments.
type Assignment struct {
	ID               string   `json:"id" validate:"required"`
	PackageID        string   `json:"packageId" validate:"required"`
	StartDate        string   `json:"startDate" validate:"required,datetime=2006-01-02"`
	CalendarEventIDs []string `json:"calendarEventIds"`
}

// FindAssignment returns the index of the assignment with the given id, or -1.
func (c *Client) FindAssignment(id string) int {
	for i, a := range c.PackageAssignments {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// HasEvents reports whether any of ids is listed on the assignment.
func (a Assignment) HasEvents(ids map[string]bool) bool {
	for _, id := range a.CalendarEventIDs {
		if ids[id] {
			return true
		}
	}
	return false
}
