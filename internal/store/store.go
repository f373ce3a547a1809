// Package store persists companies, credentials, invite codes, and
// conversation state. Postgres implementations back the bot in production;
// in-memory implementations back the tests.
package store

import "context"

// Credentials manages company and login records.
type Credentials interface {
	// CreateCompanyWithOwner registers a company and its owner login in one
	// transaction. Returns ErrUsernameTaken if the username is already used
	// within the new company namespace.
	CreateCompanyWithOwner(ctx context.Context, companyName, username, password string, telegramID int64) (Enrollment, error)
	// CreateEmployee adds a staff login to an existing company.
	CreateEmployee(ctx context.Context, companyID, username, password string, telegramID int64) (Enrollment, error)
	// Authenticate verifies a username and password pair.
	Authenticate(ctx context.Context, username, password string) (Enrollment, error)
	// FindByTelegramID returns the most recent enrollment for a Telegram user.
	FindByTelegramID(ctx context.Context, telegramID int64) (Enrollment, error)
	// Counts reports company and credential totals.
	Counts(ctx context.Context) (Counts, error)
}

// Invites manages single-use employee invite codes.
type Invites interface {
	// Generate mints a fresh active invite code for the company.
	Generate(ctx context.Context, companyID string) (string, error)
	// Redeem atomically consumes an active code and returns its company ID.
	// Exactly one caller wins for any given code; losers get
	// ErrInviteRedeemed or ErrInviteNotFound.
	Redeem(ctx context.Context, code string, byUserID int64) (string, error)
	// Counts reports active and redeemed invite totals.
	Counts(ctx context.Context) (active int, redeemed int, err error)
}

// Sessions persists per-user conversation state across restarts.
type Sessions interface {
	// Load returns the user's state, or an idle state if none is stored.
	Load(ctx context.Context, userID int64) (ConversationState, error)
	// Save upserts the user's state.
	Save(ctx context.Context, st ConversationState) error
	// Clear removes the user's state, returning them to idle.
	Clear(ctx context.Context, userID int64) error
}

// FlowNone marks an idle conversation.
const FlowNone = "none"
