package config

import (
	"time"

	"github.com/infigaming-com/go-channels/consumer"
	"github.com/infigaming-com/go-channels/layer"
	"github.com/infigaming-com/go-channels/layer/driver/inmem"
)

// Default values for optional configuration fields.
const (
	DefaultPort            = 8080
	DefaultMode            = "release"
	DefaultPath            = "/ws"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultLogLevel        = "info"
	DefaultServiceName     = "chat-server"
	DefaultEnvironment     = "development"
	DefaultOTLPEndpoint    = "localhost:4318"
)

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Mode == "" {
		c.Server.Mode = DefaultMode
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultPath
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	if c.Metrics.ServiceName == "" {
		c.Metrics.ServiceName = DefaultServiceName
	}
	if c.Metrics.Environment == "" {
		c.Metrics.Environment = DefaultEnvironment
	}
	if c.Metrics.OTLPEndpoint == "" && c.Metrics.OTLPGRPCEndpoint == "" {
		c.Metrics.OTLPEndpoint = DefaultOTLPEndpoint
	}

	if c.Chat.ChannelLayer == "" {
		c.Chat.ChannelLayer = layer.DefaultAlias
	}
	if c.Chat.Group == "" {
		c.Chat.Group = consumer.DefaultGroup
	}

	// A missing section gets the in-process layer; an empty one disables pub/sub.
	if c.ChannelLayers == nil {
		c.ChannelLayers = layer.Config{layer.DefaultAlias: {Backend: inmem.Identifier}}
	}
}
