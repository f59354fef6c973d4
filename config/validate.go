package config

import (
	"fmt"
	"strings"

	"github.com/infigaming-com/go-channels/layer"
	"github.com/infigaming-com/go-channels/message"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode)
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with '/', got %q", c.Server.Path)
	}

	if c.Metrics.Enabled && c.Metrics.OTLPEndpoint == "" && c.Metrics.OTLPGRPCEndpoint == "" {
		return fmt.Errorf("metrics.otlp_endpoint or metrics.otlp_grpc_endpoint is required when metrics are enabled")
	}

	if c.Chat.ChannelLayer == "" {
		return fmt.Errorf("chat.channel_layer is required")
	}
	if err := layer.ValidateName("group", c.Chat.Group); err != nil {
		return fmt.Errorf("chat.group: %w", err)
	}
	if _, err := message.ParseEncoding(c.Chat.Encoding); err != nil {
		return fmt.Errorf("chat.encoding: %w", err)
	}

	for alias, bc := range c.ChannelLayers {
		if bc.Backend == "" {
			return fmt.Errorf("channel_layers.%s.backend is required", alias)
		}
	}
	return nil
}
