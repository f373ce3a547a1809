package telegram

import (
	"time"

	tele "gopkg.in/telebot.v4"
)

// BuildPoller returns a long poller with the given timeout in seconds.
// Telegram delivers updates in order per user under long polling, but
// duplicates are possible across restarts; handlers must tolerate replays.
func BuildPoller(timeoutSeconds int) tele.Poller {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 10
	}
	return &tele.LongPoller{Timeout: time.Duration(timeoutSeconds) * time.Second}
}
