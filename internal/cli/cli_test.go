package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/config"
	"fleet-realtime/internal/general/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUserToken(t *testing.T) {
	token, claims, err := GenerateUserToken("secret", time.Hour, "d-1", "", " Driver ")
	require.NoError(t, err)
	assert.Equal(t, "d-1", claims.Name)

	_, parsed, err := jwt.NewManager("secret", time.Hour).ParseAndValidate(token)
	require.NoError(t, err)
	id, err := parsed.Identity()
	require.NoError(t, err)
	assert.Equal(t, "d-1", id.ID)
	assert.Equal(t, user.RoleDriver, id.Role)

	_, _, err = GenerateUserToken("secret", time.Hour, "d-1", "", "passenger")
	assert.Error(t, err)
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nbogus = 1\n"), 0o644))
	_, err = loadConfig(path)
	assert.Error(t, err)
}

func TestApplyServeFlags(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, applyServeFlags(cfg, 0, 0))
	assert.Equal(t, 256, cfg.Server.MaxConcurrent)

	require.NoError(t, applyServeFlags(cfg, 10, 9090))
	assert.Equal(t, 10, cfg.Server.MaxConcurrent)
	assert.Equal(t, 9090, cfg.Server.Port)

	assert.Error(t, applyServeFlags(cfg, -1, 0))
	assert.Error(t, applyServeFlags(cfg, 0, 70000))
}

func TestAppCommands(t *testing.T) {
	app := App()
	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"serve", "token", "init"}, names)
}
