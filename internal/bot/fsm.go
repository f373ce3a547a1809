package bot

import (
	tghelpers "github.com/roastery/baristabot/core/telegram/helpers"
	"github.com/roastery/baristabot/internal/onboarding"

	tele "gopkg.in/telebot.v4"
)

// FSMAdapter exposes the onboarding machine to the text router.
type FSMAdapter struct {
	machine *onboarding.Machine
}

// NewFSMAdapter wraps the machine.
func NewFSMAdapter(m *onboarding.Machine) *FSMAdapter {
	return &FSMAdapter{machine: m}
}

// InProgress reports whether the user has an onboarding conversation open.
func (a *FSMAdapter) InProgress(userID int64) bool {
	return a.machine.InProgress(userID)
}

// ManagerHandler feeds the message text into the machine.
func (a *FSMAdapter) ManagerHandler(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return a.machine.HandleText(ctx, c.Sender().ID, c.Text())
}
