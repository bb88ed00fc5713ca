package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Username: u.Username, Role: u.Role}
}

// Identity is the authenticated caller resolved from a session. It is
// passed explicitly to every store operation that depends on who asks.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// UserOrder selects the sort key of the user listing.
type UserOrder string

const (
	UserOrderIDAsc       UserOrder = "id_asc"
	UserOrderIDDesc      UserOrder = "id_desc"
	UserOrderCreatedAsc  UserOrder = "created_asc"
	UserOrderCreatedDesc UserOrder = "created_desc"
)

// OrderBy returns the ORDER BY clause for o, falling back to id ascending.
func (o UserOrder) OrderBy() string {
	switch o {
	case UserOrderIDDesc:
		return "id DESC"
	case UserOrderCreatedAsc:
		return "created_at ASC, id ASC"
	case UserOrderCreatedDesc:
		return "created_at DESC, id DESC"
	default:
		return "id ASC"
	}
}

type AuditLog struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
}
