package migrate

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/bot-flow/internal/business"
	"github.com/openkcm/bot-flow/internal/cmdutils"
	"github.com/openkcm/bot-flow/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"Bot flow database migrations",
		"",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
		config.MigrateSections...,
	)
}
