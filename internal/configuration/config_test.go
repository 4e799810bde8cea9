package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `{
		"mongo": {"uri": "mongodb://localhost:27017", "database": "chat"},
		"server": {"app_port": 8080, "socket_port": 8081, "allowed_origins": ["http://localhost:3000"]},
		"auth": {"jwt_secret": "from-file"},
		"relay": {"backend": "redis", "redis_addr": "localhost:6379"}
	}`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "chat", config.ChatDatabase.Database)
	assert.Equal(t, 8080, config.Server.AppPort)
	assert.Equal(t, "redis", config.Relay.Backend)

	// Unset collection names and the socket route fall back to defaults.
	assert.Equal(t, "conversations", config.ChatDatabase.ConversationsCollection)
	assert.Equal(t, "messages", config.ChatDatabase.MessagesCollection)
	assert.Equal(t, "listings", config.ChatDatabase.ListingsCollection)
	assert.Equal(t, "users", config.ChatDatabase.UsersCollection)
	assert.Equal(t, "ws", config.Server.SocketRoute)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"auth": {"jwt_secret": "from-file"}, "relay": {"redis_password": "from-file"}}`)

	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("REDIS_PASSWORD", "redis-env")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", config.Auth.JwtSecret)
	assert.Equal(t, "redis-env", config.Relay.RedisPassword)
	assert.Equal(t, "hub", config.Relay.Backend)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadConfigMalformed(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"mongo": `))
	assert.Error(t, err)
}
