package housekeeper

import (
	"github.com/spf13/cobra"

	"github.com/openkcm/bot-flow/internal/business"
	"github.com/openkcm/bot-flow/internal/cmdutils"
	"github.com/openkcm/bot-flow/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"housekeeper",
		"Bot flow housekeeping job",
		"Bot flow housekeeping job drops sessions that stayed idle longer than the configured timeout",
		buildInfo,
		cmdutils.RunAsService,
		business.HousekeeperMain,
		config.HousekeeperSections...,
	)
}
