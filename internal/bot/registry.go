package bot

import (
	tg "github.com/roastery/baristabot/core/telegram"
	"github.com/roastery/baristabot/core/telegram/commands"
	tghelpers "github.com/roastery/baristabot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// BuildRegistry assembles the command and callback registry for the bot.
func BuildRegistry(h *Handlers) (*tg.Registry, error) {
	reg := tg.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.Start,
		Description: "Start working with the bot",
	})
	reg.RegisterCommand("/owner", commands.Command{
		Handler:     h.Owner,
		Description: "Register your coffee shop",
		Aliases:     []string{"/register"},
	})
	reg.RegisterCommand("/join", commands.Command{
		Handler:     h.Join,
		Description: "Join your team with an invite code",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.Cancel,
		Description: "Abort the current signup",
	})
	reg.RegisterCommand("/profile", commands.Command{
		Handler:     h.Profile,
		Description: "Show your account",
	})
	reg.RegisterCommand("/invite", commands.Command{
		Handler:     h.Invite,
		Description: "Create an invite code for your staff",
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     h.Stats,
		Description: "Show platform totals",
		AdminOnly:   true,
		Hidden:      true,
	})

	if err := reg.RegisterCallback(cbOwner, h.RoleOwnerCallback); err != nil {
		return nil, err
	}
	if err := reg.RegisterCallback(cbJoin, h.RoleJoinCallback); err != nil {
		return nil, err
	}

	reg.SetTextFallback(h.Help)
	reg.SetCallbackNotFound(func(c tele.Context) error {
		return tghelpers.SendText(c, "This button is no longer available.")
	})

	return reg, nil
}
