package correlator

import (
	json "github.com/goccy/go-json"

	"github.com/plantpulse/core/internal/store"
)

// consumeRelay feeds relayed events from the store channel to the
// fan-out emitter, one room per category, until the subscription is
// closed by shutdown.
//
// Every instance publishes its classified events to the relay and
// every instance consumes from it, so clients of any one instance see
// the combined stream regardless of which broker session received the
// original message. The consumer outlives the broker session: a failed
// correlator still serves events classified by its peers.
func (c *Correlator) consumeRelay(msgs <-chan store.Message) error {
	c.logger.Debug("relay consumer started", "channel", c.relayChannel)

	for msg := range msgs {
		var ev Event
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			c.logger.Warn("dropping malformed relay message", "error", err)
			continue
		}
		if _, ok := ParseCategory(string(ev.Category)); !ok {
			c.logger.Warn("dropping relay message with unknown category",
				"category", ev.Category)
			continue
		}
		c.emitter.EmitRoom(EventRoom(ev.Category), ev)
	}

	c.logger.Debug("relay consumer stopped")
	return nil
}
