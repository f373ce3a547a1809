package store

import "time"

// Role distinguishes the owner account of a company from staff accounts.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleEmployee Role = "employee"
)

// Company is a registered coffee shop business.
type Company struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// Credential is a login bound to a company. Usernames are unique per company.
type Credential struct {
	ID           int64     `db:"id"`
	CompanyID    string    `db:"company_id"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	Role         Role      `db:"role"`
	TelegramID   int64     `db:"telegram_id"`
	CreatedAt    time.Time `db:"created_at"`
}

// Enrollment is the read model returned after signup and for profile lookups.
type Enrollment struct {
	CompanyID   string `db:"company_id"`
	CompanyName string `db:"company_name"`
	Username    string `db:"username"`
	Role        Role   `db:"role"`
	TelegramID  int64  `db:"telegram_id"`
}

// InviteStatus tracks the lifecycle of an invite code.
type InviteStatus string

const (
	InviteActive   InviteStatus = "active"
	InviteRedeemed InviteStatus = "redeemed"
)

// InviteCode is a single-use opaque token that admits one employee
// into the issuing company.
type InviteCode struct {
	Code       string       `db:"code"`
	CompanyID  string       `db:"company_id"`
	Status     InviteStatus `db:"status"`
	RedeemedBy *int64       `db:"redeemed_by"`
	RedeemedAt *time.Time   `db:"redeemed_at"`
	CreatedAt  time.Time    `db:"created_at"`
}

// ConversationState is the durable per-user onboarding position.
// Flow "none" with empty step means the user is idle.
type ConversationState struct {
	UserID    int64             `db:"user_id"`
	Flow      string            `db:"flow"`
	Step      string            `db:"step"`
	Collected map[string]string `db:"-"`
	UpdatedAt time.Time         `db:"updated_at"`
}

// Counts aggregates store totals for the admin stats command.
type Counts struct {
	Companies       int `db:"companies"`
	Credentials     int `db:"credentials"`
	InvitesActive   int `db:"invites_active"`
	InvitesRedeemed int `db:"invites_redeemed"`
}
