package domain

import "time"

// MandantAll is the sentinel the dashboard uses for "show every client".
// Uploads against the sentinel are rejected before any network call.
const MandantAll = "all"

// Mandant is a bookkeeping client. Almost every other entity is scoped to one.
type Mandant struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// User is a staff account. Fresh signups stay pending until an admin decides.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	DisplayName  string         `json:"display_name"`
	PasswordHash string         `json:"-"`
	Role         Role           `json:"role"`
	Approval     ApprovalStatus `json:"approval"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
