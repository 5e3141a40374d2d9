package valkeytest

import (
	"context"
	"net"

	"github.com/docker/go-connections/nat"
	"github.com/valkey-io/valkey-go"

	valkeycontainer "github.com/testcontainers/testcontainers-go/modules/valkey"
	slogctx "github.com/veqryn/slog-context"
)

const (
	Image = "valkey/valkey:8-alpine"
	Port  = nat.Port("6379")
)

// Start runs a Valkey container. The returned terminate function closes the
// client before stopping the container.
func Start(ctx context.Context) (valkey.Client, nat.Port, func(ctx context.Context)) {
	container, err := valkeycontainer.Run(ctx, Image)
	if err != nil {
		slogctx.Error(ctx, "Failed to start Valkey container", "error", err)
		panic(err)
	}

	port, err := container.MappedPort(ctx, Port)
	if err != nil {
		slogctx.Error(ctx, "Failed to map the Valkey port", "error", err)
		panic(err)
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{net.JoinHostPort("localhost", port.Port())},
	})
	if err != nil {
		slogctx.Error(ctx, "Failed to create Valkey client", "error", err)
		panic(err)
	}

	terminate := func(ctx context.Context) {
		client.Close()

		if err := container.Terminate(ctx); err != nil {
			slogctx.Error(ctx, "Failed to terminate Valkey container", "error", err)
			panic(err)
		}
	}

	return client, port, terminate
}

// Flush deletes every key starting with prefix and returns how many were removed.
func Flush(ctx context.Context, client valkey.Client, prefix string) (int64, error) {
	var (
		cursor  uint64
		removed int64
	)

	for {
		entry, err := client.Do(ctx, client.B().Scan().Cursor(cursor).Match(prefix+"*").Count(100).Build()).AsScanEntry()
		if err != nil {
			return removed, err
		}

		if len(entry.Elements) > 0 {
			n, err := client.Do(ctx, client.B().Del().Key(entry.Elements...).Build()).AsInt64()
			if err != nil {
				return removed, err
			}
			removed += n
		}

		cursor = entry.Cursor
		if cursor == 0 {
			return removed, nil
		}
	}
}
