package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/remote"
	"github.com/ideaflow/ideaflow/pkg/config"
)

func TestOpen_PrefersRemote(t *testing.T) {
	cfg := &config.Config{Remote: config.RemoteConfig{URL: "http://upstream.invalid/rpc"}}
	collaborators, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer collaborators.Close()

	assert.IsType(t, &remote.Client{}, collaborators.Fetcher)
	assert.Nil(t, collaborators.Repository)
	assert.Empty(t, collaborators.Health)
}

func TestOpen_Database(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", URL: ":memory:"},
		Logging:  config.LoggingConfig{Level: "error"},
	}
	collaborators, err := Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer collaborators.Close()

	require.NotNil(t, collaborators.Repository)
	assert.Contains(t, collaborators.Health, "database")
}

func TestOpen_BadDriver(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Driver: "oracle", URL: "x"}}
	_, err := Open(cfg, zap.NewNop())
	assert.Error(t, err)
}
