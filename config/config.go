// Package config holds the configuration file of the chat server.
package config

import (
	"time"

	"github.com/infigaming-com/go-channels/layer"
)

type Config struct {
	Server        ServerConfig  `yaml:"server"`
	Log           LogConfig     `yaml:"log"`
	Metrics       MetricsConfig `yaml:"metrics"`
	Chat          ChatConfig    `yaml:"chat"`
	ChannelLayers layer.Config  `yaml:"channel_layers"`
}

type ServerConfig struct {
	Port            int64         `yaml:"port"`
	Mode            string        `yaml:"mode"`
	Path            string        `yaml:"path"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	// Level is a zap level name or number; LOG_LEVEL wins when set.
	Level string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ServiceName      string `yaml:"service_name"`
	Environment      string `yaml:"environment"`
	OTLPEndpoint     string `yaml:"otlp_endpoint"`
	OTLPGRPCEndpoint string `yaml:"otlp_grpc_endpoint"`
}

type ChatConfig struct {
	ChannelLayer string `yaml:"channel_layer"`
	Group        string `yaml:"group"`
	Encoding     string `yaml:"encoding"`
}
