package onboarding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roastery/baristabot/internal/store"
)

// recordingSender captures replies per user instead of talking to Telegram.
type recordingSender struct {
	mu      sync.Mutex
	replies map[int64][]string
}

func newRecordingSender() *recordingSender {
	return &recordingSender{replies: map[int64][]string{}}
}

func (r *recordingSender) Send(_ context.Context, userID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies[userID] = append(r.replies[userID], text)
	return nil
}

func (r *recordingSender) last(userID int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.replies[userID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

type fixture struct {
	creds    *store.MemCredentials
	invites  *store.MemInvites
	sessions *store.MemSessions
	sender   *recordingSender
	machine  *Machine
}

func newFixture() *fixture {
	f := &fixture{
		creds:    store.NewMemCredentials(),
		invites:  store.NewMemInvites(),
		sessions: store.NewMemSessions(),
		sender:   newRecordingSender(),
	}
	f.machine = NewMachine(f.creds, f.invites, f.sessions, f.sender)
	return f
}

func (f *fixture) signupOwner(t *testing.T, userID int64, company, username, password string) store.Enrollment {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.machine.StartOwner(ctx, userID))
	require.NoError(t, f.machine.HandleText(ctx, userID, company))
	require.NoError(t, f.machine.HandleText(ctx, userID, username))
	require.NoError(t, f.machine.HandleText(ctx, userID, password))
	enr, err := f.creds.FindByTelegramID(ctx, userID)
	require.NoError(t, err)
	return enr
}

func TestOwnerSignupFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.machine.StartOwner(ctx, 1))
	assert.Equal(t, MsgAskCompanyName, f.sender.last(1))
	assert.True(t, f.machine.InProgress(1))

	require.NoError(t, f.machine.HandleText(ctx, 1, "Bean There"))
	assert.Equal(t, MsgAskUsername, f.sender.last(1))

	require.NoError(t, f.machine.HandleText(ctx, 1, "alice"))
	assert.Equal(t, MsgAskPassword, f.sender.last(1))

	require.NoError(t, f.machine.HandleText(ctx, 1, "latte-art-9"))
	assert.Contains(t, f.sender.last(1), "Bean There is registered")
	assert.Contains(t, f.sender.last(1), "invite code")
	assert.False(t, f.machine.InProgress(1))

	enr, err := f.creds.FindByTelegramID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, store.RoleOwner, enr.Role)

	// A starter invite was minted with the confirmation.
	active, _, err := f.invites.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestEmployeeJoinFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	owner := f.signupOwner(t, 1, "Roast House", "bob", "espresso-42")

	code, err := f.invites.Generate(ctx, owner.CompanyID)
	require.NoError(t, err)

	require.NoError(t, f.machine.StartEmployee(ctx, 2))
	assert.Equal(t, MsgAskInviteCode, f.sender.last(2))

	require.NoError(t, f.machine.HandleText(ctx, 2, code))
	assert.Equal(t, MsgAskUsername, f.sender.last(2))

	require.NoError(t, f.machine.HandleText(ctx, 2, "carol"))
	require.NoError(t, f.machine.HandleText(ctx, 2, "cortado-77"))
	assert.Contains(t, f.sender.last(2), "joined Roast House")
	assert.False(t, f.machine.InProgress(2))

	enr, err := f.creds.FindByTelegramID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, store.RoleEmployee, enr.Role)
	assert.Equal(t, owner.CompanyID, enr.CompanyID)
}

func TestInvalidInviteCodeKeepsStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.machine.StartEmployee(ctx, 2))
	require.NoError(t, f.machine.HandleText(ctx, 2, "nosuchcode"))
	assert.Equal(t, MsgInvalidCode, f.sender.last(2))

	st, err := f.sessions.Load(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StepAwaitingInviteCode, st.Step)
}

func TestRedeemedInviteCodeLooksLikeUnknown(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	owner := f.signupOwner(t, 1, "Drip Lab", "erin", "pour-over-88")
	code, err := f.invites.Generate(ctx, owner.CompanyID)
	require.NoError(t, err)
	_, err = f.invites.Redeem(ctx, code, 99)
	require.NoError(t, err)

	require.NoError(t, f.machine.StartEmployee(ctx, 2))
	require.NoError(t, f.machine.HandleText(ctx, 2, code))

	// Same reply as an unknown code so existence cannot be probed.
	assert.Equal(t, MsgInvalidCode, f.sender.last(2))
}

func TestConcurrentRedeemAdmitsOneEmployee(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	owner := f.signupOwner(t, 1, "Crema & Co", "frank", "ristretto-11")
	code, err := f.invites.Generate(ctx, owner.CompanyID)
	require.NoError(t, err)

	const racers = 16
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		userID := int64(100 + i)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.machine.StartEmployee(ctx, userID))
			assert.NoError(t, f.machine.HandleText(ctx, userID, code))
		}()
	}
	wg.Wait()

	var winners int
	for i := 0; i < racers; i++ {
		st, err := f.sessions.Load(ctx, int64(100+i))
		require.NoError(t, err)
		if st.Step == StepAwaitingUsername {
			winners++
		} else {
			assert.Equal(t, StepAwaitingInviteCode, st.Step)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestValidationRepromptsSameStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.machine.StartOwner(ctx, 1))
	require.NoError(t, f.machine.HandleText(ctx, 1, "   "))
	assert.Contains(t, f.sender.last(1), "cannot be empty")

	st, err := f.sessions.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StepAwaitingCompanyName, st.Step)

	require.NoError(t, f.machine.HandleText(ctx, 1, "Bean There"))
	require.NoError(t, f.machine.HandleText(ctx, 1, "ab"))
	assert.Contains(t, f.sender.last(1), "between 3 and 32")

	st, err = f.sessions.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StepAwaitingUsername, st.Step)
}

func TestCancelMidFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.machine.Cancel(ctx, 1))
	assert.Equal(t, MsgNothingToCancel, f.sender.last(1))

	require.NoError(t, f.machine.StartOwner(ctx, 1))
	require.NoError(t, f.machine.HandleText(ctx, 1, "Bean There"))
	require.NoError(t, f.machine.Cancel(ctx, 1))
	assert.Equal(t, MsgCancelled, f.sender.last(1))
	assert.False(t, f.machine.InProgress(1))

	// Collected answers are gone; a fresh start asks from the top.
	require.NoError(t, f.machine.StartOwner(ctx, 1))
	assert.Equal(t, MsgAskCompanyName, f.sender.last(1))
}

func TestCancelAtPasswordStepCommitsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.machine.StartOwner(ctx, 1))
	require.NoError(t, f.machine.HandleText(ctx, 1, "Bean There"))
	require.NoError(t, f.machine.HandleText(ctx, 1, "alice"))
	require.NoError(t, f.machine.Cancel(ctx, 1))
	assert.Equal(t, MsgCancelled, f.sender.last(1))

	counts, err := f.creds.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Companies)
	assert.Equal(t, 0, counts.Credentials)
}

func TestStartWhileInProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.machine.StartOwner(ctx, 1))
	require.NoError(t, f.machine.StartEmployee(ctx, 1))
	assert.Equal(t, MsgFlowInProgress, f.sender.last(1))

	st, err := f.sessions.Load(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, FlowOwnerSignup, st.Flow)
}

func TestStartAfterRegistration(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.signupOwner(t, 1, "Bean There", "alice", "latte-art-9")

	require.NoError(t, f.machine.StartOwner(ctx, 1))
	assert.Equal(t, MsgAlreadyRegistered, f.sender.last(1))
	assert.False(t, f.machine.InProgress(1))
}

func TestUsernameTakenReturnsToUsernameStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	owner := f.signupOwner(t, 1, "Roast House", "bob", "espresso-42")

	codeA, err := f.invites.Generate(ctx, owner.CompanyID)
	require.NoError(t, err)
	codeB, err := f.invites.Generate(ctx, owner.CompanyID)
	require.NoError(t, err)

	require.NoError(t, f.machine.StartEmployee(ctx, 2))
	require.NoError(t, f.machine.HandleText(ctx, 2, codeA))
	require.NoError(t, f.machine.HandleText(ctx, 2, "carol"))
	require.NoError(t, f.machine.HandleText(ctx, 2, "cortado-77"))

	require.NoError(t, f.machine.StartEmployee(ctx, 3))
	require.NoError(t, f.machine.HandleText(ctx, 3, codeB))
	require.NoError(t, f.machine.HandleText(ctx, 3, "carol"))
	require.NoError(t, f.machine.HandleText(ctx, 3, "macchiato-88"))
	assert.Equal(t, MsgUsernameTaken, f.sender.last(3))

	st, err := f.sessions.Load(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, StepAwaitingUsername, st.Step)

	// Picking a free username completes the join with the same invite.
	require.NoError(t, f.machine.HandleText(ctx, 3, "dave"))
	require.NoError(t, f.machine.HandleText(ctx, 3, "macchiato-88"))
	assert.Contains(t, f.sender.last(3), "joined Roast House")
}

func TestIdleTextIsIgnoredByMachine(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.machine.HandleText(ctx, 1, "hello"))
	assert.Empty(t, f.sender.last(1))
}

func TestReplayedPasswordDoesNotDoubleCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.signupOwner(t, 1, "Bean There", "alice", "latte-art-9")

	// Long polling may redeliver the last message after a restart. The
	// session is already cleared, so the machine ignores it.
	require.NoError(t, f.machine.HandleText(ctx, 1, "latte-art-9"))

	counts, err := f.creds.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Companies)
	assert.Equal(t, 1, counts.Credentials)
}

func TestMissingCollectedFieldsResets(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.sessions.Save(ctx, store.ConversationState{
		UserID:    1,
		Flow:      FlowOwnerSignup,
		Step:      StepAwaitingPassword,
		Collected: map[string]string{},
	}))

	require.NoError(t, f.machine.HandleText(ctx, 1, "latte-art-9"))
	assert.Equal(t, MsgRestart, f.sender.last(1))
	assert.False(t, f.machine.InProgress(1))

	counts, err := f.creds.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Companies)
}

func TestInvalidStoredStateResets(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.sessions.Save(ctx, store.ConversationState{
		UserID: 1,
		Flow:   FlowOwnerSignup,
		Step:   "no_such_step",
	}))

	require.NoError(t, f.machine.HandleText(ctx, 1, "anything"))
	assert.Equal(t, MsgRestart, f.sender.last(1))
	assert.False(t, f.machine.InProgress(1))
}

// stalledSessions hangs every call until the caller's deadline fires.
type stalledSessions struct{}

func (stalledSessions) Load(ctx context.Context, userID int64) (store.ConversationState, error) {
	<-ctx.Done()
	return store.ConversationState{}, ctx.Err()
}

func (stalledSessions) Save(ctx context.Context, _ store.ConversationState) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledSessions) Clear(ctx context.Context, _ int64) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestStalledStoreDoesNotBlockConversation(t *testing.T) {
	sender := newRecordingSender()
	m := NewMachine(store.NewMemCredentials(), store.NewMemInvites(), stalledSessions{}, sender)
	m.storeTimeout = 50 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		done <- m.HandleText(context.Background(), 1, "hello")
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("HandleText never returned against a hung session store")
	}
	assert.Equal(t, MsgTransient, sender.last(1))
}

func TestConcurrentPasswordFromSameUserCommitsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	require.NoError(t, f.machine.StartOwner(ctx, 1))
	require.NoError(t, f.machine.HandleText(ctx, 1, "Bean There"))
	require.NoError(t, f.machine.HandleText(ctx, 1, "alice"))

	// Telegram can deliver the same terminal message more than once at the
	// same time. Serialization means the first commits and the rest land on
	// a cleared session.
	const racers = 8
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.machine.HandleText(ctx, 1, "latte-art-9"))
		}()
	}
	wg.Wait()

	counts, err := f.creds.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Companies)
	assert.Equal(t, 1, counts.Credentials)
	assert.False(t, f.machine.InProgress(1))
}
