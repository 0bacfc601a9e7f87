package model

import (
	"strings"
	"time"
)

type Member struct {
	ID              string     `json:"id"`
	Code            string     `json:"code"`
	FullName        string     `json:"full_name"`
	Phone           string     `json:"phone"`
	OrganizationIDs []string   `json:"organization_ids"`
	DateOfBirth     *time.Time `json:"date_of_birth,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (Member) Collection() string { return "members" }

// FirstName is the first whitespace separated token of the full name, or "" when the name is blank.
func (m Member) FirstName() string {
	fields := strings.Fields(m.FullName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// HasBirthdayOn compares month and day only.
func (m Member) HasBirthdayOn(t time.Time) bool {
	if m.DateOfBirth == nil {
		return false
	}
	return m.DateOfBirth.Month() == t.Month() && m.DateOfBirth.Day() == t.Day()
}

func (m Member) BelongsTo(orgID string) bool {
	for _, id := range m.OrganizationIDs {
		if id == orgID {
			return true
		}
	}
	return false
}

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (Organization) Collection() string { return "organizations" }

type MessageTemplate struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

func (MessageTemplate) Collection() string { return "templates" }
