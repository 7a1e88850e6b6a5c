package chain

import (
	"context"

	"github.com/nerrad567/lumi-core/internal/dispatcher"
	"github.com/nerrad567/lumi-core/internal/infrastructure/mqtt"
)

// StatePublisher is a dispatcher observer that publishes each changed
// device to its retained state topic.
type StatePublisher struct {
	pub    Publisher
	logger Logger
}

// NewStatePublisher creates a StatePublisher. logger may be nil.
func NewStatePublisher(pub Publisher, logger Logger) *StatePublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &StatePublisher{pub: pub, logger: logger}
}

// OnReceipt implements dispatcher.Observer.
func (p *StatePublisher) OnReceipt(_ context.Context, r dispatcher.Receipt) {
	for _, d := range r.Devices {
		if err := p.pub.PublishJSON(mqtt.Topics{}.DeviceState(d.ID), d.Status(), true); err != nil {
			p.logger.Warn("publishing device state failed", "device_id", d.ID, "height", r.Height, "error", err)
		}
	}
}
