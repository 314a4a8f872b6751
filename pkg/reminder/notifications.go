package reminder

import (
	"fmt"
	"time"

	"github.com/napomni/napomni/internal/event_bus"
)

// Notifier turns bus events into outbound messages. It piggybacks on the
// same Sender and rate-limit delay as the dispatcher.
type Notifier struct {
	sender    Sender
	sendDelay time.Duration
}

func NewNotifier(sender Sender, sendDelay time.Duration) *Notifier {
	return &Notifier{sender: sender, sendDelay: sendDelay}
}

// Register subscribes the notifier to invitation and decline events.
func (n *Notifier) Register(bus *event_bus.EventBus) {
	event_bus.SubscribeTyped(bus, event_bus.TypeEventInvited, n.onInvited)
	event_bus.SubscribeTyped(bus, event_bus.TypeEventDeclined, n.onDeclined)
}

func (n *Notifier) onInvited(e event_bus.EventT[event_bus.EventInvited]) error {
	text := fmt.Sprintf("📬 You were added to an event\n⏱️ %s\n📝 %s",
		e.Data.StartAt.Format("2006-01-02 15:04"), e.Data.Description)
	if err := n.sender.Send(e.Context(), e.Data.To, text); err != nil {
		return fmt.Errorf("failed to notify participant about event %d: %w", e.Data.EventID, err)
	}
	time.Sleep(n.sendDelay)
	return nil
}

func (n *Notifier) onDeclined(e event_bus.EventT[event_bus.EventDeclined]) error {
	text := fmt.Sprintf("🚫 A participant declined your event\n📝 %s", e.Data.Description)
	if err := n.sender.Send(e.Context(), e.Data.Creator, text); err != nil {
		return fmt.Errorf("failed to notify creator about declined event %d: %w", e.Data.EventID, err)
	}
	time.Sleep(n.sendDelay)
	return nil
}
