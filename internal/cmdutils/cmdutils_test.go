package cmdutils

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/bot-flow/internal/config"
)

func noopBusiness(context.Context, *config.Config) error { return nil }

func passThrough(ctx context.Context, fn func(context.Context, *config.Config) error, cfg *config.Config) error {
	return fn(ctx, cfg)
}

func TestCobraCommand(t *testing.T) {
	cmd := CobraCommand("housekeeper", "short desc", "long description", "{}", passThrough, noopBusiness,
		config.HousekeeperSections...)

	assert.Equal(t, "housekeeper", cmd.Use)
	assert.Equal(t, "short desc", cmd.Short)
	assert.Equal(t, "long description", cmd.Long)
	require.NotNil(t, cmd.RunE)

	t.Run("fails without a config file", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("HOME", t.TempDir())

		cmd := CobraCommand("test", "short", "long", "{}", passThrough, noopBusiness)
		cmd.SetArgs([]string{})

		err := cmd.Execute()
		assert.ErrorContains(t, err, "loading config")
	})
}

func sourceRef(v string) commoncfg.SourceRef {
	return commoncfg.SourceRef{Source: commoncfg.EmbeddedSourceValue, Value: v}
}

func databaseOnly() *config.Config {
	return &config.Config{
		Database: config.Database{
			Name:     "bot_flow",
			Port:     "5432",
			SSLMode:  "disable",
			Host:     sourceRef("localhost"),
			User:     sourceRef("postgres"),
			Password: sourceRef("secret"),
		},
	}
}

func TestCheckConfig(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *config.Config
		sections  []config.Section
		assertErr assert.ErrorAssertionFunc
	}{
		{
			name:      "migrate needs only the database",
			cfg:       databaseOnly(),
			sections:  config.MigrateSections,
			assertErr: assert.NoError,
		},
		{
			name:     "api server needs a channel sender",
			cfg:      databaseOnly(),
			sections: config.APIServerSections,
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorContains(t, err, "validating configuration") &&
					assert.ErrorContains(t, err, "invalid channelSender config")
			},
		},
		{
			name:     "no sections checks everything",
			cfg:      databaseOnly(),
			sections: nil,
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorContains(t, err, "invalid housekeeper config")
			},
		},
		{
			name:     "missing database name",
			cfg:      &config.Config{},
			sections: config.MigrateSections,
			assertErr: func(t assert.TestingT, err error, _ ...any) bool {
				return assert.ErrorContains(t, err, "invalid database config")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertErr(t, checkConfig(tt.cfg, tt.sections))
		})
	}
}

func TestStatusListener(t *testing.T) {
	tests := []struct {
		name  string
		state health.State
	}{
		{
			name:  "no checks",
			state: health.State{Status: "up", CheckState: map[string]health.CheckState{}},
		},
		{
			name: "database up",
			state: health.State{Status: "up", CheckState: map[string]health.CheckState{
				"database": {Status: "up"},
			}},
		},
		{
			name: "valkey down",
			state: health.State{Status: "down", CheckState: map[string]health.CheckState{
				"database": {Status: "up"},
				"valkey":   {Status: "down", Result: errors.New("connection refused")},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() { statusListener(t.Context(), tt.state) })
		})
	}
}

func TestStartStatusServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	err := startStatusServer(ctx, &config.Config{})
	assert.ErrorContains(t, err, "making connection string from config")
}

func ExampleCobraCommand() {
	cmd := CobraCommand(
		"migrate",
		"Bot flow database migrations",
		"",
		"{}",
		RunAsJob,
		func(context.Context, *config.Config) error {
			fmt.Println("Applying migrations")
			return nil
		},
		config.MigrateSections...,
	)

	fmt.Printf("Command use: %s\n", cmd.Use)
	// Output: Command use: migrate
}
