package auth

import "time"

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleOwner      Role = "owner"
)

// User is the domain representation of an authenticated party. AccountID is
// the opaque ledger identity the escrow engine compares parties by; the rest
// is presentation-layer data and carries no JSON annotations so it can be
// reused by different surfaces.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	AccountID    string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains registration data supplied by callers.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FullName  string `json:"full_name"`
	AccountID string `json:"account_id"`
	Role      Role   `json:"role"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
