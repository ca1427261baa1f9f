package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gkeb/node4j/internal/config"
	"github.com/gkeb/node4j/internal/session"
	"github.com/gkeb/node4j/internal/types"
)

const testModels = "testdata/models.yaml"

// fakeBackend is a MockDriver with a canned health status.
type fakeBackend struct {
	*session.MockDriver

	mu     sync.Mutex
	health types.HealthStatus
	closed bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		MockDriver: session.NewMockDriver(),
		health:     types.Healthy("connected to Neo4j"),
	}
}

func (f *fakeBackend) Health(ctx context.Context) types.HealthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}

func (f *fakeBackend) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeBackend) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeBackend) opener() backendOpener {
	return func(ctx context.Context, cfg config.Neo4jConfig, logger *slog.Logger) (backend, error) {
		return f, nil
	}
}

func failingOpener(err error) backendOpener {
	return func(ctx context.Context, cfg config.Neo4jConfig, logger *slog.Logger) (backend, error) {
		return nil, err
	}
}

// writeConfig writes a minimal config file and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `neo4j:
  uri: bolt://localhost:7687
  database: people
logging:
  level: error
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// runCLI executes the command tree with the test config and models.
func runCLI(t *testing.T, open backendOpener, args ...string) (string, string, error) {
	t.Helper()
	if open == nil {
		open = failingOpener(types.NewError(types.ErrCodeConnectivity, "no backend in this test"))
	}

	root := newRootCmd(open)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", writeConfig(t), "--models", testModels}, args...))

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}
