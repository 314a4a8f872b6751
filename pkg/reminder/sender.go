package reminder

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/napomni/napomni/pkg/user"
)

// Sender delivers one message to one platform identity. Chat-platform
// adapters (Telegram, Max) implement it; delivery errors are returned as
// ordinary errors and the adapter enforces its own timeouts.
type Sender interface {
	Send(ctx context.Context, to user.PlatformRef, text string) error
}

// LogSender is a stand-in transport that writes outbound messages to the
// log. Used until a real platform adapter is wired in, and in tests.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to user.PlatformRef, text string) error {
	log.Infof("outbound message to tg=%d max=%d: %s", to.TelegramID, to.MaxID, text)
	return nil
}
