package bot

import (
	"errors"
	"fmt"

	"github.com/roastery/baristabot/core/telegram/format"
	tghelpers "github.com/roastery/baristabot/core/telegram/helpers"
	"github.com/roastery/baristabot/core/telegram/keyboard"
	"github.com/roastery/baristabot/internal/onboarding"
	"github.com/roastery/baristabot/internal/store"

	tele "gopkg.in/telebot.v4"
)

// Callback keys for the /start role choice.
const (
	cbOwner = "onboard_owner"
	cbJoin  = "onboard_join"
)

const helpText = "I can set up your coffee shop on this platform.\n\n" +
	"/owner - register your coffee shop\n" +
	"/join - join your team with an invite code\n" +
	"/profile - show your account\n" +
	"/invite - create an invite code for your staff\n" +
	"/cancel - abort the current signup"

// Handlers owns the Telegram-facing command and callback logic.
type Handlers struct {
	machine *onboarding.Machine
	creds   store.Credentials
	invites store.Invites
}

// NewHandlers wires the machine and stores.
func NewHandlers(machine *onboarding.Machine, creds store.Credentials, invites store.Invites) *Handlers {
	return &Handlers{machine: machine, creds: creds, invites: invites}
}

// Start greets the user and offers the two onboarding flows.
func (h *Handlers) Start(c tele.Context) error {
	markup := keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "☕ Register my coffee shop", Unique: cbOwner},
		{Text: "🤝 Join my team", Unique: cbJoin},
	})
	return tghelpers.SendMD(c, "Welcome! What would you like to do?", markup)
}

// Owner begins the owner signup flow.
func (h *Handlers) Owner(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return h.machine.StartOwner(ctx, c.Sender().ID)
}

// Join begins the employee join flow.
func (h *Handlers) Join(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return h.machine.StartEmployee(ctx, c.Sender().ID)
}

// Cancel aborts the current flow.
func (h *Handlers) Cancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return h.machine.Cancel(ctx, c.Sender().ID)
}

// Profile shows the caller's enrollment.
func (h *Handlers) Profile(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	enr, err := tghelpers.CurrentUser[store.Enrollment](ctx, h.creds, c.Sender().ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return tghelpers.SendText(c, "You don't have an account yet. Use /owner or /join to create one.")
		}
		return err
	}

	name, mdErr := format.EscapeMarkdown(enr.CompanyName, format.MarkdownV1)
	if mdErr != nil {
		name = enr.CompanyName
	}
	role := "Employee"
	if enr.Role == store.RoleOwner {
		role = "Owner"
	}
	return tghelpers.SendMD(c, fmt.Sprintf("*%s*\n%s: `%s`", name, role, enr.Username))
}

// Invite mints a fresh invite code for the caller's company. Owners only.
func (h *Handlers) Invite(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	enr, err := tghelpers.CurrentUser[store.Enrollment](ctx, h.creds, c.Sender().ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return tghelpers.SendText(c, "You don't have an account yet. Use /owner to register your coffee shop first.")
		}
		return err
	}
	if enr.Role != store.RoleOwner {
		return tghelpers.SendText(c, "Only owners can create invite codes.")
	}

	code, err := h.invites.Generate(ctx, enr.CompanyID)
	if err != nil {
		return err
	}
	return tghelpers.SendText(c, "Here's a fresh invite code for your staff:\n"+code)
}

// Stats reports store totals. Wired admin-only.
func (h *Handlers) Stats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	counts, err := h.creds.Counts(ctx)
	if err != nil {
		return err
	}
	return tghelpers.SendText(c, fmt.Sprintf(
		"Companies: %d\nLogins: %d\nInvites active: %d\nInvites redeemed: %d",
		counts.Companies, counts.Credentials, counts.InvitesActive, counts.InvitesRedeemed,
	))
}

// RoleOwnerCallback handles the /start inline choice for owners.
func (h *Handlers) RoleOwnerCallback(c tele.Context) error {
	// Rewrite the greeting without its keyboard so the choice cannot be
	// tapped a second time. Best-effort, the flow starts either way.
	_ = tghelpers.EditOrSendMD(c, "☕ Registering your coffee shop.")
	return h.Owner(c)
}

// RoleJoinCallback handles the /start inline choice for employees.
func (h *Handlers) RoleJoinCallback(c tele.Context) error {
	_ = tghelpers.EditOrSendMD(c, "🤝 Joining a team.")
	return h.Join(c)
}

// Help is the fallback for unrecognized text from idle users.
func (h *Handlers) Help(c tele.Context) error {
	return tghelpers.SendText(c, helpText)
}
