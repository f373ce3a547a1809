package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MemCredentials is an in-memory Credentials store used in tests and
// local development without Postgres.
type MemCredentials struct {
	mu        sync.Mutex
	companies map[string]Company
	creds     []Credential
}

// NewMemCredentials returns an empty in-memory credentials store.
func NewMemCredentials() *MemCredentials {
	return &MemCredentials{companies: map[string]Company{}}
}

func (s *MemCredentials) usernameTaken(companyID, username string) bool {
	for _, c := range s.creds {
		if c.CompanyID == companyID && c.Username == username {
			return true
		}
	}
	return false
}

// CreateCompanyWithOwner registers a company and its owner login atomically.
func (s *MemCredentials) CreateCompanyWithOwner(_ context.Context, companyName, username, password string, telegramID int64) (Enrollment, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return Enrollment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	companyID := uuid.NewString()
	if s.usernameTaken(companyID, username) {
		return Enrollment{}, ErrUsernameTaken
	}
	s.companies[companyID] = Company{ID: companyID, Name: companyName, CreatedAt: time.Now()}
	s.creds = append(s.creds, Credential{
		ID:           int64(len(s.creds) + 1),
		CompanyID:    companyID,
		Username:     username,
		PasswordHash: string(hash),
		Role:         RoleOwner,
		TelegramID:   telegramID,
		CreatedAt:    time.Now(),
	})
	return Enrollment{
		CompanyID:   companyID,
		CompanyName: companyName,
		Username:    username,
		Role:        RoleOwner,
		TelegramID:  telegramID,
	}, nil
}

// CreateEmployee adds a staff login to an existing company.
func (s *MemCredentials) CreateEmployee(_ context.Context, companyID, username, password string, telegramID int64) (Enrollment, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return Enrollment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	company, ok := s.companies[companyID]
	if !ok {
		return Enrollment{}, ErrNotFound
	}
	if s.usernameTaken(companyID, username) {
		return Enrollment{}, ErrUsernameTaken
	}
	s.creds = append(s.creds, Credential{
		ID:           int64(len(s.creds) + 1),
		CompanyID:    companyID,
		Username:     username,
		PasswordHash: string(hash),
		Role:         RoleEmployee,
		TelegramID:   telegramID,
		CreatedAt:    time.Now(),
	})
	return Enrollment{
		CompanyID:   companyID,
		CompanyName: company.Name,
		Username:    username,
		Role:        RoleEmployee,
		TelegramID:  telegramID,
	}, nil
}

// Authenticate verifies a username and password pair.
func (s *MemCredentials) Authenticate(_ context.Context, username, password string) (Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.creds) - 1; i >= 0; i-- {
		c := s.creds[i]
		if c.Username != username {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) != nil {
			return Enrollment{}, ErrInvalidLogin
		}
		return s.enrollment(c), nil
	}
	return Enrollment{}, ErrInvalidLogin
}

// FindByTelegramID returns the most recent enrollment for a Telegram user.
func (s *MemCredentials) FindByTelegramID(_ context.Context, telegramID int64) (Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.creds) - 1; i >= 0; i-- {
		if s.creds[i].TelegramID == telegramID {
			return s.enrollment(s.creds[i]), nil
		}
	}
	return Enrollment{}, ErrNotFound
}

func (s *MemCredentials) enrollment(c Credential) Enrollment {
	return Enrollment{
		CompanyID:   c.CompanyID,
		CompanyName: s.companies[c.CompanyID].Name,
		Username:    c.Username,
		Role:        c.Role,
		TelegramID:  c.TelegramID,
	}
}

// Counts reports company and credential totals.
func (s *MemCredentials) Counts(_ context.Context) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{Companies: len(s.companies), Credentials: len(s.creds)}, nil
}

// MemInvites is an in-memory Invites store.
type MemInvites struct {
	mu    sync.Mutex
	codes map[string]*InviteCode
}

// NewMemInvites returns an empty in-memory invite store.
func NewMemInvites() *MemInvites {
	return &MemInvites{codes: map[string]*InviteCode{}}
}

// Generate mints a fresh active invite code for the company.
func (s *MemInvites) Generate(_ context.Context, companyID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 1; attempt <= maxMintAttempts; attempt++ {
		code, err := MintCode()
		if err != nil {
			return "", err
		}
		if _, exists := s.codes[code]; exists {
			continue
		}
		s.codes[code] = &InviteCode{
			Code:      code,
			CompanyID: companyID,
			Status:    InviteActive,
			CreatedAt: time.Now(),
		}
		return code, nil
	}
	return "", fmt.Errorf("mint invite code: exhausted %d attempts", maxMintAttempts)
}

// Redeem consumes an active code under the store lock so that exactly one
// concurrent caller wins.
func (s *MemInvites) Redeem(_ context.Context, code string, byUserID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.codes[code]
	if !ok {
		return "", ErrInviteNotFound
	}
	if inv.Status != InviteActive {
		return "", ErrInviteRedeemed
	}
	now := time.Now()
	inv.Status = InviteRedeemed
	inv.RedeemedBy = &byUserID
	inv.RedeemedAt = &now
	return inv.CompanyID, nil
}

// Counts reports active and redeemed invite totals.
func (s *MemInvites) Counts(_ context.Context) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active, redeemed int
	for _, inv := range s.codes {
		if inv.Status == InviteActive {
			active++
		} else {
			redeemed++
		}
	}
	return active, redeemed, nil
}

// MemSessions is an in-memory Sessions store.
type MemSessions struct {
	mu     sync.Mutex
	states map[int64]ConversationState
}

// NewMemSessions returns an empty in-memory session store.
func NewMemSessions() *MemSessions {
	return &MemSessions{states: map[int64]ConversationState{}}
}

// Load returns the user's state, or an idle state if none is stored.
func (s *MemSessions) Load(_ context.Context, userID int64) (ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[userID]
	if !ok {
		return ConversationState{UserID: userID, Flow: FlowNone}, nil
	}
	// Copy the map so callers cannot mutate stored state in place.
	collected := make(map[string]string, len(st.Collected))
	for k, v := range st.Collected {
		collected[k] = v
	}
	st.Collected = collected
	return st, nil
}

// Save upserts the user's state.
func (s *MemSessions) Save(_ context.Context, st ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collected := make(map[string]string, len(st.Collected))
	for k, v := range st.Collected {
		collected[k] = v
	}
	st.Collected = collected
	st.UpdatedAt = time.Now()
	s.states[st.UserID] = st
	return nil
}

// Clear removes the user's state.
func (s *MemSessions) Clear(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}
