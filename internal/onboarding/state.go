// Package onboarding implements the conversation state machine that signs
// coffee shop owners up and lets employees join with single-use invite codes.
package onboarding

import "github.com/roastery/baristabot/internal/store"

// Flows. A user is in at most one flow at a time.
const (
	FlowNone         = store.FlowNone
	FlowOwnerSignup  = "owner_signup"
	FlowEmployeeJoin = "employee_join"
)

// Steps within a flow.
const (
	StepAwaitingCompanyName = "awaiting_company_name"
	StepAwaitingInviteCode  = "awaiting_invite_code"
	StepAwaitingUsername    = "awaiting_username"
	StepAwaitingPassword    = "awaiting_password"
)

// Keys under which collected answers are stored between steps.
const (
	keyCompanyName = "company_name"
	keyCompanyID   = "company_id"
	keyUsername    = "username"
)
