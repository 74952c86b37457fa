package models

type PackageDefinition struct {
	ID    string        `json:"id" validate:"required"`
	Name  string        `json:"name" validate:"required"`
	Price float64       `json:"price" validate:"gte=0"`
	Tasks []PackageTask `json:"tasks" validate:"dive"`
}

func (p PackageDefinition) Key() string { return p.ID }

// PackageTask is one step of a package template. OffsetDays is relative to
// the assignment start date and may be zero or negative.
type PackageTask struct {
	ID         string `json:"id" validate:"required"`
	Title      string `json:"title" validate:"required"`
	Type       string `json:"type"`
	OffsetDays int    `json:"offsetDays"`
}

// DefaultPackages is the catalog seeded when neither the remote store nor the
// local mirror has any packages.
func DefaultPackages() []PackageDefinition {
	return []PackageDefinition{
		{
			ID:    "pkg-starter",
			Name:  "Starter",
			Price: 1500,
			Tasks: []PackageTask{
				{ID: "pkg-starter-kickoff", Title: "Kickoff call", Type: "meeting", OffsetDays: 0},
				{ID: "pkg-starter-shoot", Title: "Content shoot", Type: "shoot", OffsetDays: 5},
				{ID: "pkg-starter-delivery", Title: "Asset delivery", Type: "deadline", OffsetDays: 12},
			},
		},
		{
			ID:    "pkg-growth",
			Name:  "Growth",
			Price: 4200,
			Tasks: []PackageTask{
				{ID: "pkg-growth-brief", Title: "Strategy brief due", Type: "deadline", OffsetDays: -3},
				{ID: "pkg-growth-kickoff", Title: "Kickoff workshop", Type: "meeting", OffsetDays: 0},
				{ID: "pkg-growth-shoot", Title: "Campaign shoot", Type: "shoot", OffsetDays: 7},
				{ID: "pkg-growth-review", Title: "Performance review", Type: "meeting", OffsetDays: 30},
			},
		},
		{
			ID:    "pkg-retainer",
			Name:  "Retainer",
			Price: 2800,
			Tasks: []PackageTask{
				{ID: "pkg-retainer-plan", Title: "Monthly planning", Type: "meeting", OffsetDays: 0},
				{ID: "pkg-retainer-report", Title: "Monthly report", Type: "deadline", OffsetDays: 28},
			},
		},
	}
}
