package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/roastery/baristabot/core/logger"
)

const uniqueViolation = "23505"

// PGCredentials is the Postgres-backed Credentials store.
type PGCredentials struct {
	db *sqlx.DB
}

// NewPGCredentials wraps the shared database handle.
func NewPGCredentials(db *sqlx.DB) *PGCredentials {
	return &PGCredentials{db: db}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// CreateCompanyWithOwner registers the company and its owner login in a
// single transaction so a failed credential insert leaves no orphan company.
func (s *PGCredentials) CreateCompanyWithOwner(ctx context.Context, companyName, username, password string, telegramID int64) (Enrollment, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return Enrollment{}, err
	}

	companyID := uuid.NewString()
	start := time.Now()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Enrollment{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO companies (id, name) VALUES ($1, $2)`,
		companyID, companyName,
	); err != nil {
		return Enrollment{}, fmt.Errorf("insert company: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO credentials (company_id, username, password_hash, role, telegram_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		companyID, username, hash, RoleOwner, telegramID,
	); err != nil {
		if isUniqueViolation(err) {
			return Enrollment{}, ErrUsernameTaken
		}
		return Enrollment{}, fmt.Errorf("insert owner credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Enrollment{}, fmt.Errorf("commit owner signup: %w", err)
	}

	logger.Info(ctx, "service.credentials", "owner.created",
		slog.String("company_id", companyID),
		slog.Int64("user_id", telegramID),
		slog.Duration("duration_ms", logger.RoundMS(time.Since(start))),
	)

	return Enrollment{
		CompanyID:   companyID,
		CompanyName: companyName,
		Username:    username,
		Role:        RoleOwner,
		TelegramID:  telegramID,
	}, nil
}

// CreateEmployee adds a staff login to an existing company.
func (s *PGCredentials) CreateEmployee(ctx context.Context, companyID, username, password string, telegramID int64) (Enrollment, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return Enrollment{}, err
	}

	var companyName string
	if err := s.db.GetContext(ctx, &companyName,
		`SELECT name FROM companies WHERE id = $1`, companyID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, ErrNotFound
		}
		return Enrollment{}, fmt.Errorf("select company: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (company_id, username, password_hash, role, telegram_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		companyID, username, hash, RoleEmployee, telegramID,
	); err != nil {
		if isUniqueViolation(err) {
			return Enrollment{}, ErrUsernameTaken
		}
		return Enrollment{}, fmt.Errorf("insert employee credential: %w", err)
	}

	logger.Info(ctx, "service.credentials", "employee.created",
		slog.String("company_id", companyID),
		slog.Int64("user_id", telegramID),
	)

	return Enrollment{
		CompanyID:   companyID,
		CompanyName: companyName,
		Username:    username,
		Role:        RoleEmployee,
		TelegramID:  telegramID,
	}, nil
}

// Authenticate verifies the password against the stored bcrypt hash.
// Unknown usernames and wrong passwords both map to ErrInvalidLogin.
func (s *PGCredentials) Authenticate(ctx context.Context, username, password string) (Enrollment, error) {
	var row struct {
		Enrollment
		PasswordHash string `db:"password_hash"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT c.company_id, co.name AS company_name, c.username, c.role, c.telegram_id, c.password_hash
		 FROM credentials c
		 JOIN companies co ON co.id = c.company_id
		 WHERE c.username = $1
		 ORDER BY c.created_at DESC
		 LIMIT 1`,
		username,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, ErrInvalidLogin
		}
		return Enrollment{}, fmt.Errorf("select credential: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)) != nil {
		return Enrollment{}, ErrInvalidLogin
	}
	return row.Enrollment, nil
}

// FindByTelegramID returns the most recent enrollment for a Telegram user.
func (s *PGCredentials) FindByTelegramID(ctx context.Context, telegramID int64) (Enrollment, error) {
	var enr Enrollment
	err := s.db.GetContext(ctx, &enr,
		`SELECT c.company_id, co.name AS company_name, c.username, c.role, c.telegram_id
		 FROM credentials c
		 JOIN companies co ON co.id = c.company_id
		 WHERE c.telegram_id = $1
		 ORDER BY c.created_at DESC
		 LIMIT 1`,
		telegramID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, ErrNotFound
		}
		return Enrollment{}, fmt.Errorf("select enrollment: %w", err)
	}
	return enr, nil
}

// Counts reports company and credential totals.
func (s *PGCredentials) Counts(ctx context.Context) (Counts, error) {
	var out Counts
	err := s.db.GetContext(ctx, &out,
		`SELECT
			(SELECT COUNT(*) FROM companies) AS companies,
			(SELECT COUNT(*) FROM credentials) AS credentials,
			(SELECT COUNT(*) FROM invite_codes WHERE status = 'active') AS invites_active,
			(SELECT COUNT(*) FROM invite_codes WHERE status = 'redeemed') AS invites_redeemed`,
	)
	if err != nil {
		return Counts{}, fmt.Errorf("select counts: %w", err)
	}
	return out, nil
}
