package bus

import (
	"fmt"

	"github.com/opensource-finance/heron/internal/domain"
)

// New creates a new event bus based on configuration.
// "channel" keeps everything in process; "nats" connects to a NATS server.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("%w: unsupported event bus type: %s", domain.ErrConfiguration, cfg.Type)
	}
}
