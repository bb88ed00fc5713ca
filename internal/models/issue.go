package models

import "time"

type Urgency string

const (
	UrgencyNone     Urgency = "Non urgente"
	UrgencyUrgent   Urgency = "Urgente"
	UrgencyCritical Urgency = "Critico"
)

var Urgencies = []Urgency{UrgencyNone, UrgencyUrgent, UrgencyCritical}

func (u Urgency) Valid() bool {
	for _, v := range Urgencies {
		if u == v {
			return true
		}
	}
	return false
}

// Status is a closed set; any member may follow any other.
type Status string

const (
	StatusOpen       Status = "Aperto"
	StatusInProgress Status = "In corso"
	StatusOnHold     Status = "Sospeso"
	StatusClosed     Status = "Chiuso"
)

var Statuses = []Status{StatusOpen, StatusInProgress, StatusOnHold, StatusClosed}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

type Issue struct {
	ID             int64      `json:"id"`
	Room           string     `json:"room"`
	Cinema         string     `json:"cinema"`
	Kind           string     `json:"kind"`
	Description    string     `json:"description"`
	Urgency        Urgency    `json:"urgency"`
	Status         Status     `json:"status"`
	AuthorID       int64      `json:"author_id"`
	AuthorUsername string     `json:"author"`
	OpenedAt       time.Time  `json:"opened_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// IssueInput carries the client-supplied fields of a new issue. The author
// always comes from the caller's identity.
type IssueInput struct {
	Room        string
	Cinema      string
	Kind        string
	Description string
	Urgency     Urgency
	OpenedAt    *time.Time
}

// IssueUpdate is a partial update; nil fields keep their stored value.
type IssueUpdate struct {
	Room        *string
	Cinema      *string
	Kind        *string
	Description *string
	Urgency     *Urgency
	Status      *Status
	OpenedAt    *time.Time
}

// IssueFilter narrows an issue listing. Zero values mean "no constraint".
// AuthorID is honoured for admins only; everyone else is always scoped to
// their own issues.
type IssueFilter struct {
	AuthorID int64
	Status   Status
	Urgency  Urgency
	Cinema   string
	Search   string
}
