package models

import "time"

// Student is a study-hall member on the roster.
type Student struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	School      *string   `db:"school" json:"school,omitempty"`
	Grade       *int      `db:"grade" json:"grade,omitempty"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	ParentPhone *string   `db:"parent_phone" json:"parent_phone,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter captures filtering criteria for roster listings.
type StudentFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
