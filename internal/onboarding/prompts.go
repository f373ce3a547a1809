package onboarding

// User-facing messages. The invalid-code reply is deliberately identical for
// unknown and already-redeemed codes so the bot never confirms that a given
// code exists.
const (
	MsgAskCompanyName = "Great, let's register your coffee shop! What's the name of your business?"
	MsgAskInviteCode  = "Welcome aboard! Please enter the invite code you received from your manager."
	MsgAskUsername    = "Now choose a username for logging in."
	MsgAskPassword    = "Choose a password (at least 8 characters). You can delete your message afterwards."

	MsgInvalidCode   = "That code is invalid or has already been used. Please check it and try again, or /cancel."
	MsgUsernameTaken = "That username is already taken in this company. Please choose another."

	MsgTransient = "Something went wrong on our side. Please send that again in a moment."
	MsgRestart   = "Sorry, I lost track of our conversation. Please start over with /owner or /join."

	MsgCancelled       = "Okay, cancelled. Your progress has been discarded."
	MsgNothingToCancel = "There's nothing to cancel right now."

	MsgAlreadyRegistered = "You already have an account. Use /profile to see it."
	MsgFlowInProgress    = "You're in the middle of signing up. Finish the current step or /cancel first."
)

func ownerConfirmation(companyName, username, inviteCode string) string {
	msg := "🎉 " + companyName + " is registered!\n\n" +
		"Your owner login is \"" + username + "\"."
	if inviteCode != "" {
		msg += "\n\nShare this invite code with your staff so they can join:\n" + inviteCode
	} else {
		msg += "\n\nYou can generate invite codes for your staff with /invite."
	}
	return msg
}

func employeeConfirmation(companyName, username string) string {
	return "✅ You've joined " + companyName + "!\n\n" +
		"Your login is \"" + username + "\"."
}
