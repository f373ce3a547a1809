package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsOwnerSignup(t *testing.T) {
	ctx := context.Background()
	creds := NewMemCredentials()

	enr, err := creds.CreateCompanyWithOwner(ctx, "Bean There", "alice", "latte-art-9", 100)
	require.NoError(t, err)
	assert.Equal(t, "Bean There", enr.CompanyName)
	assert.Equal(t, RoleOwner, enr.Role)
	assert.NotEmpty(t, enr.CompanyID)

	got, err := creds.Authenticate(ctx, "alice", "latte-art-9")
	require.NoError(t, err)
	assert.Equal(t, enr.CompanyID, got.CompanyID)

	_, err = creds.Authenticate(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidLogin)

	_, err = creds.Authenticate(ctx, "nobody", "latte-art-9")
	assert.ErrorIs(t, err, ErrInvalidLogin)
}

func TestCredentialsEmployeeUsernameTaken(t *testing.T) {
	ctx := context.Background()
	creds := NewMemCredentials()

	owner, err := creds.CreateCompanyWithOwner(ctx, "Roast House", "bob", "espresso-42", 200)
	require.NoError(t, err)

	_, err = creds.CreateEmployee(ctx, owner.CompanyID, "carol", "cortado-77", 300)
	require.NoError(t, err)

	_, err = creds.CreateEmployee(ctx, owner.CompanyID, "carol", "other-pass-1", 400)
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = creds.CreateEmployee(ctx, "missing-company", "dave", "flatwhite-5", 500)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCredentialsFindByTelegramID(t *testing.T) {
	ctx := context.Background()
	creds := NewMemCredentials()

	_, err := creds.FindByTelegramID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	enr, err := creds.CreateCompanyWithOwner(ctx, "Drip Lab", "erin", "pour-over-8", 999)
	require.NoError(t, err)

	got, err := creds.FindByTelegramID(ctx, 999)
	require.NoError(t, err)
	assert.Equal(t, enr, got)
}

func TestInvitesRoundTrip(t *testing.T) {
	ctx := context.Background()
	invites := NewMemInvites()

	code, err := invites.Generate(ctx, "company-1")
	require.NoError(t, err)
	assert.Len(t, code, codeLength)

	companyID, err := invites.Redeem(ctx, code, 42)
	require.NoError(t, err)
	assert.Equal(t, "company-1", companyID)

	_, err = invites.Redeem(ctx, code, 43)
	assert.ErrorIs(t, err, ErrInviteRedeemed)

	_, err = invites.Redeem(ctx, "nosuchcode", 44)
	assert.ErrorIs(t, err, ErrInviteNotFound)
}

func TestInvitesConcurrentRedeemSingleWinner(t *testing.T) {
	ctx := context.Background()
	invites := NewMemInvites()

	code, err := invites.Generate(ctx, "company-1")
	require.NoError(t, err)

	const racers = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(userID int64) {
			defer wg.Done()
			if _, err := invites.Redeem(ctx, code, userID); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, wins)

	active, redeemed, err := invites.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, active)
	assert.Equal(t, 1, redeemed)
}

func TestSessionsLifecycle(t *testing.T) {
	ctx := context.Background()
	sessions := NewMemSessions()

	st, err := sessions.Load(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, FlowNone, st.Flow)

	st.Flow = "owner_signup"
	st.Step = "awaiting_username"
	st.Collected = map[string]string{"company_name": "Bean There"}
	require.NoError(t, sessions.Save(ctx, st))

	// Mutating the caller's map must not leak into the store.
	st.Collected["company_name"] = "changed"

	got, err := sessions.Load(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "owner_signup", got.Flow)
	assert.Equal(t, "awaiting_username", got.Step)
	assert.Equal(t, "Bean There", got.Collected["company_name"])

	require.NoError(t, sessions.Clear(ctx, 7))

	idle, err := sessions.Load(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, FlowNone, idle.Flow)
	assert.Empty(t, idle.Step)
}

func TestMintCodeAlphabet(t *testing.T) {
	code, err := MintCode()
	require.NoError(t, err)
	assert.Len(t, code, codeLength)
	for _, r := range code {
		assert.Contains(t, codeAlphabet, string(r))
	}
}
