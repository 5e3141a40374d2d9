// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

const (
	FlowSourceSQL   = "sql"
	FlowSourceFiles = "files"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`
	GRPC GRPCServer `yaml:"grpc"`

	Database      Database      `yaml:"database"`
	ValKey        ValKey        `yaml:"valkey"`
	Migrate       Migrate       `yaml:"migrate"`
	Interpreter   Interpreter   `yaml:"interpreter"`
	FlowStore     FlowStore     `yaml:"flowStore"`
	Dispatch      Dispatch      `yaml:"dispatch"`
	ChannelSender ChannelSender `yaml:"channelSender"`
	Housekeeper   Housekeeper   `yaml:"housekeeper"`
	SessionLock   SessionLock   `yaml:"sessionLock"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s" validate:"gt=0"`
}

type GRPCServer struct {
	commoncfg.GRPCServer `mapstructure:",squash" yaml:",inline"`

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s" validate:"gt=0"`
}

type Database struct {
	Name     string              `yaml:"name" validate:"required"`
	Port     string              `yaml:"port" default:"5432" validate:"required"`
	SSLMode  string              `yaml:"sslMode" default:"disable" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
	Prefix    string              `yaml:"prefix" default:"bot-flow"`
	// SessionTTL bounds how long an untouched session survives in valkey.
	SessionTTL time.Duration `yaml:"sessionTTL" default:"720h" validate:"gt=0"`
}

type Migrate struct {
	Source string `yaml:"source" default:"file://./sql"`
}

type Interpreter struct {
	StepCeiling int `yaml:"stepCeiling" default:"20" validate:"min=1"`
}

type FlowStore struct {
	Source    string        `yaml:"source" default:"sql" validate:"oneof=sql files"`
	Directory string        `yaml:"directory" validate:"required_if=Source files"`
	CacheTTL  time.Duration `yaml:"cacheTTL" default:"1m" validate:"gte=0"`
}

type Dispatch struct {
	Workers     int           `yaml:"workers" default:"4" validate:"min=1"`
	QueueSize   int           `yaml:"queueSize" default:"256" validate:"min=0"`
	SendTimeout time.Duration `yaml:"sendTimeout" default:"10s" validate:"gt=0"`
}

type ChannelSender struct {
	BaseURL       string              `yaml:"baseURL" validate:"required,url"`
	Token         commoncfg.SourceRef `yaml:"token"`
	Timeout       time.Duration       `yaml:"timeout" default:"5s" validate:"gt=0"`
	RetryCount    int                 `yaml:"retryCount" default:"2" validate:"min=0"`
	RetryWaitTime time.Duration       `yaml:"retryWaitTime" default:"200ms" validate:"gte=0"`
}

type Housekeeper struct {
	TriggerInterval  time.Duration `yaml:"triggerInterval" default:"5m" validate:"gt=0"`
	IdleTimeout      time.Duration `yaml:"idleTimeout" default:"24h" validate:"gt=0"`
	ConcurrencyLimit int           `yaml:"concurrencyLimit" default:"8" validate:"min=1"`
}

type SessionLock struct {
	TTL time.Duration `yaml:"ttl" default:"30s" validate:"gt=0"`
}
