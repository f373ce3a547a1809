package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"

	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/roastery/baristabot/core/logger"
)

const (
	codeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"
	codeLength   = 10

	// A fresh random code colliding with an existing one is vanishingly
	// rare; the retry loop only guards against the pathological case.
	maxMintAttempts = 5
)

// MintCode produces a random invite code from an alphabet without
// lookalike characters. Failure means the platform entropy source is broken.
func MintCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("mint invite code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// PGInvites is the Postgres-backed Invites store.
type PGInvites struct {
	db *sqlx.DB
}

// NewPGInvites wraps the shared database handle.
func NewPGInvites(db *sqlx.DB) *PGInvites {
	return &PGInvites{db: db}
}

// Generate mints a fresh active invite code for the company.
func (s *PGInvites) Generate(ctx context.Context, companyID string) (string, error) {
	for attempt := 1; attempt <= maxMintAttempts; attempt++ {
		code, err := MintCode()
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO invite_codes (code, company_id, status) VALUES ($1, $2, 'active')`,
			code, companyID,
		)
		if err == nil {
			logger.Info(ctx, "service.invites", "invite.generated",
				slog.String("company_id", companyID),
				slog.Int("attempts", attempt),
			)
			return code, nil
		}
		if !isUniqueViolation(err) {
			return "", fmt.Errorf("insert invite: %w", err)
		}
	}
	return "", fmt.Errorf("insert invite: exhausted %d mint attempts", maxMintAttempts)
}

// Redeem consumes an active code in a single statement so that under
// concurrent redemption exactly one caller observes the transition.
func (s *PGInvites) Redeem(ctx context.Context, code string, byUserID int64) (string, error) {
	var companyID string
	err := s.db.GetContext(ctx, &companyID,
		`UPDATE invite_codes
		 SET status = 'redeemed', redeemed_by = $2, redeemed_at = NOW()
		 WHERE code = $1 AND status = 'active'
		 RETURNING company_id`,
		code, byUserID,
	)
	if err == nil {
		logger.Info(ctx, "service.invites", "invite.redeemed",
			slog.String("company_id", companyID),
			slog.Int64("user_id", byUserID),
		)
		return companyID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("redeem invite: %w", err)
	}

	// Distinguish missing from already-consumed for logs and metrics.
	// Callers surface both as the same generic reply.
	var status InviteStatus
	err = s.db.GetContext(ctx, &status,
		`SELECT status FROM invite_codes WHERE code = $1`, code,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", ErrInviteNotFound
	case err != nil:
		return "", fmt.Errorf("inspect invite: %w", err)
	case status == InviteRedeemed:
		return "", ErrInviteRedeemed
	default:
		return "", ErrInviteNotFound
	}
}

// Counts reports active and redeemed invite totals.
func (s *PGInvites) Counts(ctx context.Context) (int, int, error) {
	var row struct {
		Active   int `db:"invites_active"`
		Redeemed int `db:"invites_redeemed"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT
			COUNT(*) FILTER (WHERE status = 'active') AS invites_active,
			COUNT(*) FILTER (WHERE status = 'redeemed') AS invites_redeemed
		 FROM invite_codes`,
	)
	if err != nil {
		return 0, 0, fmt.Errorf("count invites: %w", err)
	}
	return row.Active, row.Redeemed, nil
}
