package models

// CalendarEvent is a dated entry on the agency calendar. Events with
// AutoGenerated set belong to the assignment that created them.
type CalendarEvent struct {
	ID            string `json:"id" validate:"required"`
	Title         string `json:"title" validate:"required"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	Type          string `json:"type"`
	Client        string `json:"client,omitempty"`
	PackageID     string `json:"packageId,omitempty"`
	PackageTaskID string `json:"packageTaskId,omitempty"`
	AutoGenerated bool   `json:"autoGenerated"`
}

func (e CalendarEvent) Key() string { return e.ID }
