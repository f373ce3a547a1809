package onboarding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCompanyName(t *testing.T) {
	name, reason := ValidateCompanyName("  Bean There  ")
	assert.Empty(t, reason)
	assert.Equal(t, "Bean There", name)

	_, reason = ValidateCompanyName("   ")
	assert.NotEmpty(t, reason)

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	_, reason = ValidateCompanyName(string(long))
	assert.NotEmpty(t, reason)
}

func TestValidateUsername(t *testing.T) {
	username, reason := ValidateUsername("alice")
	assert.Empty(t, reason)
	assert.Equal(t, "alice", username)

	for _, bad := range []string{"", "ab", " alice", "alice ", "al ice", "al\tice"} {
		_, reason := ValidateUsername(bad)
		assert.NotEmpty(t, reason, "input %q should be rejected", bad)
	}
}

func TestValidatePassword(t *testing.T) {
	pw, reason := ValidatePassword("espresso shot 42")
	assert.Empty(t, reason)
	assert.Equal(t, "espresso shot 42", pw)

	_, reason = ValidatePassword("short")
	assert.NotEmpty(t, reason)
}

func TestNormalizeInviteCode(t *testing.T) {
	assert.Equal(t, "abc234", NormalizeInviteCode("  ABC234 "))
	assert.Equal(t, "", NormalizeInviteCode("   "))
}
