package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PGSessions is the Postgres-backed Sessions store.
type PGSessions struct {
	db *sqlx.DB
}

// NewPGSessions wraps the shared database handle.
func NewPGSessions(db *sqlx.DB) *PGSessions {
	return &PGSessions{db: db}
}

// Load returns the user's state, or an idle state if none is stored.
func (s *PGSessions) Load(ctx context.Context, userID int64) (ConversationState, error) {
	var row struct {
		ConversationState
		Collected []byte `db:"collected"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT user_id, flow, step, collected, updated_at
		 FROM sessions WHERE user_id = $1`,
		userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ConversationState{UserID: userID, Flow: FlowNone}, nil
	}
	if err != nil {
		return ConversationState{}, fmt.Errorf("select session: %w", err)
	}

	st := row.ConversationState
	st.Collected = map[string]string{}
	if len(row.Collected) > 0 {
		if err := json.Unmarshal(row.Collected, &st.Collected); err != nil {
			return ConversationState{}, fmt.Errorf("decode session data: %w", err)
		}
	}
	return st, nil
}

// Save upserts the user's state.
func (s *PGSessions) Save(ctx context.Context, st ConversationState) error {
	collected := st.Collected
	if collected == nil {
		collected = map[string]string{}
	}
	blob, err := json.Marshal(collected)
	if err != nil {
		return fmt.Errorf("encode session data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, flow, step, collected, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET flow = EXCLUDED.flow, step = EXCLUDED.step,
		     collected = EXCLUDED.collected, updated_at = NOW()`,
		st.UserID, st.Flow, st.Step, blob,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Clear removes the user's state, returning them to idle.
func (s *PGSessions) Clear(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1`, userID,
	); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
