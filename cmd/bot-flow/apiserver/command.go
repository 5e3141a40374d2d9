package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/bot-flow/internal/business"
	"github.com/openkcm/bot-flow/internal/cmdutils"
	"github.com/openkcm/bot-flow/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Bot flow API server",
		"Bot flow API server runs bot flows for inbound messages over a public HTTP API and serves gRPC health checks",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
		config.APIServerSections...,
	)
}
