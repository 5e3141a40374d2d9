package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/logger"
	"github.com/openkcm/common-sdk/pkg/utils"
	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/bot-flow/internal/business"
	"github.com/openkcm/bot-flow/internal/config"
)

var (
	BuildInfo = "{}"

	versionFlag             = flag.Bool("version", false, "print version information")
	gracefulShutdownSec     = flag.Int64("graceful-shutdown", 1, "graceful shutdown seconds")
	gracefulShutdownMessage = flag.String("graceful-shutdown-message", "Graceful shutdown in %d seconds",
		"graceful shutdown message")
)

// run loads the config, initialises the logger and applies the migrations.
func run(ctx context.Context) error {
	defaultValues := map[string]any{}
	cfg := new(config.Config)

	err := commoncfg.LoadConfig(cfg, defaultValues, "/etc/bot-flow", "$HOME/.bot-flow", ".")
	if err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to load the configuration")
	}

	err = commoncfg.UpdateConfigVersion(&cfg.BaseConfig, BuildInfo)
	if err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to update the version configuration")
	}

	err = config.Validate(cfg, config.MigrateSections...)
	if err != nil {
		return oops.In("main").
			Wrapf(err, "Invalid configuration")
	}

	err = logger.InitAsDefault(cfg.Logger, cfg.Application)
	if err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to initialise the logger")
	}

	return business.MigrateMain(ctx, cfg)
}

// runFuncWithSignalHandling runs the given function with signal handling. When
// a CTRL-C is received, the context will be cancelled on which the function can
// act upon.
func runFuncWithSignalHandling(f func(context.Context) error) int {
	ctx, cancelOnSignal := signal.NotifyContext(
		context.Background(),
		os.Interrupt, syscall.SIGTERM,
	)
	defer cancelOnSignal()

	exitCode := 0

	if err := f(ctx); err != nil {
		slogctx.Error(ctx, "Failed to run the migrations", "error", err)
		_, _ = fmt.Fprintln(os.Stderr, err)
		exitCode = 1
	}

	_, _ = fmt.Fprintln(os.Stderr, fmt.Sprintf(*gracefulShutdownMessage, *gracefulShutdownSec))
	time.Sleep(time.Duration(*gracefulShutdownSec) * time.Second)

	return exitCode
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Println(utils.ExtractFromComplexValue(BuildInfo))
		os.Exit(0)
	}

	exitCode := runFuncWithSignalHandling(run)
	os.Exit(exitCode)
}
