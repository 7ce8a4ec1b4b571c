package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.GetServerAddr())
	assert.False(t, cfg.Workflow.Strict)
	assert.Equal(t, 5*time.Minute, cfg.Workflow.ReconcileInterval)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "", cfg.AMQP.URL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("WORKFLOW_STRICT", "true")
	t.Setenv("DB_NAME", "pledges")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.True(t, cfg.Workflow.Strict)
	assert.Contains(t, cfg.Database.GetDatabaseURL(), "dbname=pledges")
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.GetServerAddr())
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "cassandra")

	_, err := Load(context.Background())
	assert.Error(t, err)
}
