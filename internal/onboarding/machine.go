package onboarding

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/roastery/baristabot/core/logger"
	"github.com/roastery/baristabot/internal/store"
)

// defaultStoreTimeout caps each store call made while a user's lock is held.
// A stalled backend surfaces as context.DeadlineExceeded on the transient
// path instead of pinning the lock and the conversation forever.
const defaultStoreTimeout = 5 * time.Second

// Sender delivers a text reply to a Telegram user. The production
// implementation goes through the outbound dispatcher; tests record.
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
}

// stepHandler advances a conversation by one step. It returns the mutated
// state to persist, or a nil flag via done=true when the flow finished and
// state must be cleared instead.
type stepHandler func(ctx context.Context, m *Machine, userID int64, input string, st store.ConversationState) (next store.ConversationState, done bool, err error)

// Machine drives the owner-signup and employee-join conversations.
// All updates for one user are serialized, so redelivered messages are
// processed one at a time against current state.
type Machine struct {
	creds    store.Credentials
	invites  store.Invites
	sessions store.Sessions
	sender   Sender

	mu    sync.Mutex
	locks map[int64]*sync.Mutex

	handlers map[string]stepHandler

	storeTimeout time.Duration
}

// NewMachine wires the stores and the delivery adapter.
func NewMachine(creds store.Credentials, invites store.Invites, sessions store.Sessions, sender Sender) *Machine {
	m := &Machine{
		creds:        creds,
		invites:      invites,
		sessions:     sessions,
		sender:       sender,
		locks:        map[int64]*sync.Mutex{},
		storeTimeout: defaultStoreTimeout,
	}
	m.handlers = map[string]stepHandler{
		FlowOwnerSignup + "/" + StepAwaitingCompanyName: handleCompanyName,
		FlowOwnerSignup + "/" + StepAwaitingUsername:    handleUsername,
		FlowOwnerSignup + "/" + StepAwaitingPassword:    handleOwnerPassword,

		FlowEmployeeJoin + "/" + StepAwaitingInviteCode: handleInviteCode,
		FlowEmployeeJoin + "/" + StepAwaitingUsername:   handleUsername,
		FlowEmployeeJoin + "/" + StepAwaitingPassword:   handleEmployeePassword,
	}
	return m
}

// bounded derives the deadline a single store call runs under. Replies are
// sent on the parent context so a store timeout does not also kill the
// "try again" message.
func (m *Machine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.storeTimeout)
}

func (m *Machine) userLock(userID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	return lock
}

// InProgress reports whether the user has an onboarding conversation open.
func (m *Machine) InProgress(userID int64) bool {
	sctx, cancel := m.bounded(context.Background())
	st, err := m.sessions.Load(sctx, userID)
	cancel()
	if err != nil {
		logger.Error(context.Background(), "service.onboarding", "session.load.failed",
			slog.Int64("user_id", userID),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return false
	}
	return st.Flow != FlowNone
}

func (m *Machine) reply(ctx context.Context, userID int64, text string) error {
	return m.sender.Send(ctx, userID, text)
}

// StartOwner begins the owner signup flow for the user.
func (m *Machine) StartOwner(ctx context.Context, userID int64) error {
	return m.startFlow(ctx, userID, FlowOwnerSignup, StepAwaitingCompanyName, MsgAskCompanyName)
}

// StartEmployee begins the employee join flow for the user.
func (m *Machine) StartEmployee(ctx context.Context, userID int64) error {
	return m.startFlow(ctx, userID, FlowEmployeeJoin, StepAwaitingInviteCode, MsgAskInviteCode)
}

func (m *Machine) startFlow(ctx context.Context, userID int64, flow, step, prompt string) error {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sctx, cancel := m.bounded(ctx)
	st, err := m.sessions.Load(sctx, userID)
	cancel()
	if err != nil {
		return m.transient(ctx, userID, "session.load.failed", err)
	}
	if st.Flow != FlowNone {
		return m.reply(ctx, userID, MsgFlowInProgress)
	}
	sctx, cancel = m.bounded(ctx)
	_, err = m.creds.FindByTelegramID(sctx, userID)
	cancel()
	if err == nil {
		return m.reply(ctx, userID, MsgAlreadyRegistered)
	} else if !errors.Is(err, store.ErrNotFound) {
		return m.transient(ctx, userID, "enrollment.lookup.failed", err)
	}

	next := store.ConversationState{
		UserID:    userID,
		Flow:      flow,
		Step:      step,
		Collected: map[string]string{},
	}
	sctx, cancel = m.bounded(ctx)
	err = m.sessions.Save(sctx, next)
	cancel()
	if err != nil {
		return m.transient(ctx, userID, "session.save.failed", err)
	}

	logger.Info(ctx, "service.onboarding", "flow.started",
		slog.Int64("user_id", userID),
		slog.String("flow", flow),
		slog.String("step", step),
	)
	return m.reply(ctx, userID, prompt)
}

// Cancel aborts the current flow, if any, and discards collected answers.
func (m *Machine) Cancel(ctx context.Context, userID int64) error {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sctx, cancel := m.bounded(ctx)
	st, err := m.sessions.Load(sctx, userID)
	cancel()
	if err != nil {
		return m.transient(ctx, userID, "session.load.failed", err)
	}
	if st.Flow == FlowNone {
		return m.reply(ctx, userID, MsgNothingToCancel)
	}
	sctx, cancel = m.bounded(ctx)
	err = m.sessions.Clear(sctx, userID)
	cancel()
	if err != nil {
		return m.transient(ctx, userID, "session.clear.failed", err)
	}
	logger.Info(ctx, "service.onboarding", "flow.cancelled",
		slog.Int64("user_id", userID),
		slog.String("flow", st.Flow),
		slog.String("step", st.Step),
	)
	return m.reply(ctx, userID, MsgCancelled)
}

// HandleText feeds one message of user input into the machine.
func (m *Machine) HandleText(ctx context.Context, userID int64, text string) error {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sctx, cancel := m.bounded(ctx)
	st, err := m.sessions.Load(sctx, userID)
	cancel()
	if err != nil {
		return m.transient(ctx, userID, "session.load.failed", err)
	}
	if st.Flow == FlowNone {
		// Nothing in progress, the router's fallback owns this message.
		return nil
	}

	handler, ok := m.handlers[st.Flow+"/"+st.Step]
	if !ok {
		// Unknown flow/step combination in the store. Reset rather than
		// trap the user in a conversation no code can advance.
		logger.Error(ctx, "service.onboarding", "state.invalid",
			slog.Int64("user_id", userID),
			slog.String("flow", st.Flow),
			slog.String("step", st.Step),
		)
		sctx, cancel := m.bounded(ctx)
		err := m.sessions.Clear(sctx, userID)
		cancel()
		if err != nil {
			return m.transient(ctx, userID, "session.clear.failed", err)
		}
		return m.reply(ctx, userID, MsgRestart)
	}

	if st.Collected == nil {
		st.Collected = map[string]string{}
	}

	next, done, err := handler(ctx, m, userID, text, st)
	if done {
		// Clear even when the confirmation send failed: the commit already
		// happened and a lingering session would invite a second one.
		sctx, cancel := m.bounded(ctx)
		clearErr := m.sessions.Clear(sctx, userID)
		cancel()
		if clearErr != nil {
			logger.Warn(ctx, "service.onboarding", "session.clear.failed",
				slog.Int64("user_id", userID),
				slog.String("err", logger.SanitizeLimit(clearErr.Error(), 256)),
			)
		}
		return err
	}
	if err != nil {
		return err
	}
	if next.Step != st.Step || next.Flow != st.Flow {
		logger.Info(ctx, "service.onboarding", "step.advanced",
			slog.Int64("user_id", userID),
			slog.String("flow", next.Flow),
			slog.String("step", next.Step),
		)
	}
	sctx, cancel = m.bounded(ctx)
	err = m.sessions.Save(sctx, next)
	cancel()
	if err != nil {
		return m.transient(ctx, userID, "session.save.failed", err)
	}
	return nil
}

// transient logs a retryable failure and asks the user to resend.
// State is left untouched so the retry lands on the same step.
func (m *Machine) transient(ctx context.Context, userID int64, event string, err error) error {
	logger.Error(ctx, "service.onboarding", event,
		slog.Int64("user_id", userID),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		slog.Bool("retryable", true),
	)
	return m.reply(ctx, userID, MsgTransient)
}

func handleCompanyName(ctx context.Context, m *Machine, userID int64, input string, st store.ConversationState) (store.ConversationState, bool, error) {
	name, reason := ValidateCompanyName(input)
	if reason != "" {
		return st, false, m.reply(ctx, userID, reason)
	}
	st.Collected[keyCompanyName] = name
	st.Step = StepAwaitingUsername
	return st, false, m.reply(ctx, userID, MsgAskUsername)
}

func handleInviteCode(ctx context.Context, m *Machine, userID int64, input string, st store.ConversationState) (store.ConversationState, bool, error) {
	code := NormalizeInviteCode(input)
	if code == "" {
		return st, false, m.reply(ctx, userID, MsgInvalidCode)
	}

	sctx, cancel := m.bounded(ctx)
	companyID, err := m.invites.Redeem(sctx, code, userID)
	cancel()
	if err != nil {
		if store.IsConflict(err) {
			logger.Warn(ctx, "service.onboarding", "invite.rejected",
				slog.Int64("user_id", userID),
			)
			return st, false, m.reply(ctx, userID, MsgInvalidCode)
		}
		return st, false, m.transient(ctx, userID, "invite.redeem.failed", err)
	}

	st.Collected[keyCompanyID] = companyID
	st.Step = StepAwaitingUsername
	return st, false, m.reply(ctx, userID, MsgAskUsername)
}

func handleUsername(ctx context.Context, m *Machine, userID int64, input string, st store.ConversationState) (store.ConversationState, bool, error) {
	username, reason := ValidateUsername(input)
	if reason != "" {
		return st, false, m.reply(ctx, userID, reason)
	}
	st.Collected[keyUsername] = username
	st.Step = StepAwaitingPassword
	return st, false, m.reply(ctx, userID, MsgAskPassword)
}

// corrupted clears state that is missing fields a commit step requires.
// That state cannot be produced by the handlers; it means the session row
// was edited or written by an incompatible version.
func (m *Machine) corrupted(ctx context.Context, userID int64, st store.ConversationState, missing string) (store.ConversationState, bool, error) {
	logger.Error(ctx, "service.onboarding", "state.corrupted",
		slog.Int64("user_id", userID),
		slog.String("flow", st.Flow),
		slog.String("step", st.Step),
		slog.String("cause", missing),
	)
	sctx, cancel := m.bounded(ctx)
	err := m.sessions.Clear(sctx, userID)
	cancel()
	if err != nil {
		return st, false, m.transient(ctx, userID, "session.clear.failed", err)
	}
	return st, true, m.reply(ctx, userID, MsgRestart)
}

func handleOwnerPassword(ctx context.Context, m *Machine, userID int64, input string, st store.ConversationState) (store.ConversationState, bool, error) {
	password, reason := ValidatePassword(input)
	if reason != "" {
		return st, false, m.reply(ctx, userID, reason)
	}

	companyName := st.Collected[keyCompanyName]
	username := st.Collected[keyUsername]
	if companyName == "" || username == "" {
		return m.corrupted(ctx, userID, st, keyCompanyName+"/"+keyUsername)
	}

	sctx, cancel := m.bounded(ctx)
	enr, err := m.creds.CreateCompanyWithOwner(sctx, companyName, username, password, userID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			st.Step = StepAwaitingUsername
			delete(st.Collected, keyUsername)
			return st, false, m.reply(ctx, userID, MsgUsernameTaken)
		}
		return st, false, m.transient(ctx, userID, "owner.commit.failed", err)
	}

	// The first invite code rides along with the confirmation. Minting is
	// best-effort: the company is already committed, and the owner can
	// always generate codes later.
	sctx, cancel = m.bounded(ctx)
	inviteCode, err := m.invites.Generate(sctx, enr.CompanyID)
	cancel()
	if err != nil {
		logger.Warn(ctx, "service.onboarding", "invite.generate.failed",
			slog.Int64("user_id", userID),
			slog.String("company_id", enr.CompanyID),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		inviteCode = ""
	}

	logger.Info(ctx, "service.onboarding", "owner.committed",
		slog.Int64("user_id", userID),
		slog.String("company_id", enr.CompanyID),
	)
	return st, true, m.reply(ctx, userID, ownerConfirmation(enr.CompanyName, enr.Username, inviteCode))
}

func handleEmployeePassword(ctx context.Context, m *Machine, userID int64, input string, st store.ConversationState) (store.ConversationState, bool, error) {
	password, reason := ValidatePassword(input)
	if reason != "" {
		return st, false, m.reply(ctx, userID, reason)
	}

	companyID := st.Collected[keyCompanyID]
	username := st.Collected[keyUsername]
	if companyID == "" || username == "" {
		return m.corrupted(ctx, userID, st, keyCompanyID+"/"+keyUsername)
	}

	sctx, cancel := m.bounded(ctx)
	enr, err := m.creds.CreateEmployee(sctx, companyID, username, password, userID)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			st.Step = StepAwaitingUsername
			delete(st.Collected, keyUsername)
			return st, false, m.reply(ctx, userID, MsgUsernameTaken)
		}
		return st, false, m.transient(ctx, userID, "employee.commit.failed", err)
	}

	logger.Info(ctx, "service.onboarding", "employee.committed",
		slog.Int64("user_id", userID),
		slog.String("company_id", enr.CompanyID),
	)
	return st, true, m.reply(ctx, userID, employeeConfirmation(enr.CompanyName, enr.Username))
}
