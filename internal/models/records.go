package models

import "time"

type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "draft"
	InvoiceSent  InvoiceStatus = "sent"
	InvoicePaid  InvoiceStatus = "paid"
	InvoiceVoid  InvoiceStatus = "void"
)

type Invoice struct {
	ID       string        `json:"id" validate:"required"`
	ClientID string        `json:"clientId" validate:"required"`
	Number   string        `json:"number" validate:"required"`
	Amount   float64       `json:"amount" validate:"gte=0"`
	Status   InvoiceStatus `json:"status" validate:"omitempty,oneof=draft sent paid void"`
	IssuedAt string        `json:"issuedAt,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DueDate  string        `json:"dueDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

func (i Invoice) Key() string { return i.ID }

// Note is free text attached to a client. Body edits arrive keystroke by
// keystroke and are saved with the debounced policy.
type Note struct {
	ID        string    `json:"id" validate:"required"`
	ClientID  string    `json:"clientId,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (n Note) Key() string { return n.ID }

// ChecklistItem is one entry of the daily checklist.
type ChecklistItem struct {
	ID    string `json:"id" validate:"required"`
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
	Label string `json:"label" validate:"required"`
	Done  bool   `json:"done"`
}

func (c ChecklistItem) Key() string { return c.ID }
