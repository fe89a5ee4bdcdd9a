package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sourcequal/codequal/pkg/logger"
)

func TestManagerInitializeCreatesSchema(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(DefaultConfig(dir), logger.NewNop())
	require.NoError(t, m.Initialize())
	defer m.Close()

	var name string
	err := m.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='repositories'").Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "repositories", name)
}

func TestManagerInitializeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(DefaultConfig(dir), logger.NewNop())
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Close())

	m2 := NewManager(DefaultConfig(dir), logger.NewNop())
	require.NoError(t, m2.Initialize())
	defer m2.Close()
}
