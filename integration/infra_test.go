//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io/fs"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/goccy/go-yaml"
	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/bot-flow/internal/config"
	"github.com/openkcm/bot-flow/internal/dbtest/postgrestest"
	"github.com/openkcm/bot-flow/internal/dbtest/valkeytest"
)

type closeFunc func(ctx context.Context)

type delivery struct {
	Platform  string
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

// gateway records the messages the service hands to the messaging platform.
type gateway struct {
	mu         sync.Mutex
	deliveries []delivery
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var d delivery
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	d.Platform = r.PathValue("platform")

	g.mu.Lock()
	g.deliveries = append(g.deliveries, d)
	g.mu.Unlock()

	w.WriteHeader(http.StatusAccepted)
}

func (g *gateway) Deliveries() []delivery {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]delivery(nil), g.deliveries...)
}

type infraStat struct {
	PostgresPort   nat.Port
	ValKeyPort     nat.Port
	ValKeyClient   valkey.Client
	Gateway        *gateway
	ConfigFilePath string
	Procdir        string
	Cfg            config.Config

	closeFuncs []closeFunc
}

func initInfra(t *testing.T, exeName string) (istat infraStat) {
	t.Helper()

	// The config is read from $PWD/config.yaml, so every process gets its own directory.
	wd, err := os.Getwd()
	require.NoError(t, err, "failed to get wd")
	istat.Procdir = filepath.Join(wd, exeName+"-test")
	istat.ConfigFilePath = filepath.Join(istat.Procdir, "config.yaml")

	err = os.MkdirAll(istat.Procdir, fs.ModePerm)
	require.NoError(t, err, "failed to create a dir for the process")

	err = os.WriteFile(istat.ConfigFilePath, []byte(validConfig), fs.ModePerm)
	require.NoError(t, err, "failed to write config file")

	err = commoncfg.LoadConfig(&istat.Cfg, nil, istat.Procdir)
	require.NoError(t, err, "failed to load config")

	istat.Cfg.HTTP.Address = "unix://" + filepath.Join(istat.Procdir, exeName+".sock")
	istat.Cfg.GRPC.Address = ":0"

	return istat
}

func (istat *infraStat) PreparePostgres(t *testing.T) {
	t.Helper()

	pgClient, pgPort, pgTerminate := postgrestest.Start(t.Context())
	pgClient.Close()

	istat.PostgresPort = pgPort
	istat.closeFuncs = append(istat.closeFuncs, pgTerminate)

	istat.Cfg.Database.Name = postgrestest.DBName
	istat.Cfg.Database.User = commoncfg.SourceRef{Source: "embedded", Value: postgrestest.DBUser}
	istat.Cfg.Database.Password = commoncfg.SourceRef{Source: "embedded", Value: postgrestest.DBPassword}
	istat.Cfg.Database.Host = commoncfg.SourceRef{Source: "embedded", Value: "localhost"}
	istat.Cfg.Database.Port = pgPort.Port()
}

func (istat *infraStat) PrepareValKey(t *testing.T) {
	t.Helper()

	vkClient, vkPort, vkTerminate := valkeytest.Start(t.Context())

	istat.ValKeyPort = vkPort
	istat.ValKeyClient = vkClient
	istat.closeFuncs = append(istat.closeFuncs, vkTerminate)

	istat.Cfg.ValKey.Host = commoncfg.SourceRef{Source: "embedded", Value: net.JoinHostPort("localhost", vkPort.Port())}
	istat.Cfg.ValKey.User = commoncfg.SourceRef{Source: "embedded", Value: ""}
	istat.Cfg.ValKey.Password = commoncfg.SourceRef{Source: "embedded", Value: ""}
}

func (istat *infraStat) PrepareGateway(t *testing.T) {
	t.Helper()

	istat.Gateway = &gateway{}
	mux := http.NewServeMux()
	mux.Handle("POST /v1/platforms/{platform}/messages", istat.Gateway)

	srv := httptest.NewServer(mux)
	istat.closeFuncs = append(istat.closeFuncs, func(context.Context) { srv.Close() })

	istat.Cfg.ChannelSender.BaseURL = srv.URL
}

// PrepareConfig writes a config file for running the test into the ConfigFilePath.
func (istat *infraStat) PrepareConfig(t *testing.T) {
	t.Helper()

	data, err := yaml.Marshal(istat.Cfg)
	require.NoError(t, err, "failed to encode config")

	err = os.WriteFile(istat.ConfigFilePath, data, fs.ModePerm)
	require.NoError(t, err, "failed to write config")
}

// StartCommand runs the binary with the given subcommand in Procdir and
// stops it with SIGTERM when the test ends.
func (istat *infraStat) StartCommand(t *testing.T, subcommand string) {
	t.Helper()

	currdir, err := os.Getwd()
	require.NoError(t, err, "failed to get wd")

	cmd := exec.Command(filepath.Join(currdir, binary), subcommand)
	cmd.Dir = istat.Procdir

	cmdOutPath := filepath.Join(currdir, subcommand+".log")
	cmdOut, err := os.Create(cmdOutPath)
	require.NoError(t, err, "failed to create a log file")

	cmd.Stdout = cmdOut
	cmd.Stderr = cmdOut
	t.Logf("starting %s process. Logs will be saved into %s", subcommand, cmdOutPath)

	require.NoError(t, cmd.Start(), "could not start command")

	t.Cleanup(func() {
		_ = syscall.Kill(cmd.Process.Pid, syscall.SIGTERM)
		_ = cmd.Wait()
		cmdOut.Close()
	})
}

// UnixClient returns an HTTP client that talks to the API server socket.
func (istat *infraStat) UnixClient(t *testing.T) *http.Client {
	t.Helper()

	socket := istat.Cfg.HTTP.Address[len("unix://"):]
	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 15*time.Second, 100*time.Millisecond, "api server socket never came up")

	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return new(net.Dialer).DialContext(ctx, "unix", socket)
			},
		},
	}
}

func (istat *infraStat) Close(ctx context.Context) {
	os.Remove(istat.ConfigFilePath)
	os.RemoveAll(istat.Procdir)

	for _, close := range istat.closeFuncs {
		close(ctx)
	}
}
