package business

import (
	"context"
	"fmt"
	"sync"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/bot-flow/internal/bot"
	"github.com/openkcm/bot-flow/internal/business/server"
	"github.com/openkcm/bot-flow/internal/channel/channelhttp"
	"github.com/openkcm/bot-flow/internal/config"
	"github.com/openkcm/bot-flow/internal/dispatch"
	"github.com/openkcm/bot-flow/internal/flow"
	"github.com/openkcm/bot-flow/internal/flow/flowcache"
	"github.com/openkcm/bot-flow/internal/flow/flowfile"
	"github.com/openkcm/bot-flow/internal/flow/flowsql"
	"github.com/openkcm/bot-flow/internal/interpreter"
	"github.com/openkcm/bot-flow/internal/message/messagesql"
	"github.com/openkcm/bot-flow/internal/session/sessionvalkey"
)

// Main starts both API servers
func Main(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// errChan is used to capture the first error and shutdown the servers.
	errChan := make(chan error, 2)

	var wg sync.WaitGroup

	// public HTTP REST API
	wg.Go(func() {
		errChan <- publicMain(ctx, cfg)
	})

	// internal gRPC health API
	wg.Go(func() {
		errChan <- server.StartGRPCServer(ctx, cfg)
	})

	if err := <-errChan; err != nil {
		slogctx.Error(ctx, "Shutting down servers", "error", err)
	}
	cancel()

	wg.Wait()

	return nil
}

// publicMain starts the HTTP REST public API server.
func publicMain(ctx context.Context, cfg *config.Config) error {
	service, flows, closeFn, err := initBotService(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the bot service: %w", err)
	}
	defer closeFn()

	return server.StartHTTPServer(ctx, cfg, service, flows)
}

func initBotService(ctx context.Context, cfg *config.Config) (_ *bot.Service, _ flow.Store, closeFn func(), _ error) {
	db, err := dbPoolFromConfig(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	flows, err := flowRepoFromConfig(ctx, cfg, db)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	valkeyClient, err := valkeyClientFromConfig(cfg)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	sender, err := channelSenderFromConfig(cfg)
	if err != nil {
		valkeyClient.Close()
		db.Close()
		return nil, nil, nil, err
	}

	dispatcher := dispatch.New(ctx, sender, dispatch.Config{
		Workers:     cfg.Dispatch.Workers,
		QueueSize:   cfg.Dispatch.QueueSize,
		SendTimeout: cfg.Dispatch.SendTimeout,
	})

	sessions := sessionvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix, cfg.ValKey.SessionTTL)
	locker := sessionvalkey.NewLocker(valkeyClient, cfg.ValKey.Prefix, cfg.SessionLock.TTL)

	registry := interpreter.NewDefaultRegistry()
	slogctx.Info(ctx, "Registered node handlers", "node_types", registry.Types())

	interp := interpreter.New(ctx,
		flows,
		sessions,
		messagesql.NewRepository(db),
		registry,
		interpreter.WithStepCeiling(cfg.Interpreter.StepCeiling),
		interpreter.WithEffectRunner(dispatcher),
	)

	closeFn = func() {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Dispatch.SendTimeout)
		defer cancel()

		if err := dispatcher.Close(drainCtx); err != nil {
			slogctx.Warn(ctx, "Outbound sends still pending at shutdown", "error", err)
		}
		valkeyClient.Close()
		db.Close()
	}

	return bot.NewService(interp, sessions, locker), flows, closeFn, nil
}

func dbPoolFromConfig(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("making dsn from config: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing pgxpool config: %w", err)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("initialising pgxpool connection: %w", err)
	}

	return db, nil
}

func flowRepoFromConfig(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (flow.Store, error) {
	var repo flow.Store

	switch cfg.FlowStore.Source {
	case config.FlowSourceFiles:
		fileRepo, err := flowfile.NewRepository(cfg.FlowStore.Directory)
		if err != nil {
			return nil, fmt.Errorf("loading flows from %s: %w", cfg.FlowStore.Directory, err)
		}
		slogctx.Info(ctx, "Loaded flows from files", "directory", cfg.FlowStore.Directory, "bots", fileRepo.BotIDs())
		repo = fileRepo
	case config.FlowSourceSQL, "":
		repo = flowsql.NewRepository(db)
	default:
		return nil, fmt.Errorf("unknown flow store source %q", cfg.FlowStore.Source)
	}

	if cfg.FlowStore.CacheTTL > 0 {
		repo = flowcache.NewRepository(repo, cfg.FlowStore.CacheTTL)
	}

	return repo, nil
}

func valkeyClientFromConfig(cfg *config.Config) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	}

	if cfg.ValKey.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.ValKey.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return valkeyClient, nil
}

func channelSenderFromConfig(cfg *config.Config) (*channelhttp.Sender, error) {
	var token string
	if cfg.ChannelSender.Token.Source != "" {
		raw, err := commoncfg.LoadValueFromSourceRef(cfg.ChannelSender.Token)
		if err != nil {
			return nil, fmt.Errorf("loading channel sender token: %w", err)
		}
		token = string(raw)
	}

	return channelhttp.NewSender(channelhttp.Config{
		BaseURL:       cfg.ChannelSender.BaseURL,
		Token:         token,
		Timeout:       cfg.ChannelSender.Timeout,
		RetryCount:    cfg.ChannelSender.RetryCount,
		RetryWaitTime: cfg.ChannelSender.RetryWaitTime,
	}), nil
}
