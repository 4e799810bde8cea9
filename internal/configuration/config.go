package configuration

import (
	"encoding/json"
	"os"
)

type MongoConfig struct {
	Uri                     string `json:"uri"`
	Database                string `json:"database"`
	ConversationsCollection string `json:"conversationsCollection"`
	MessagesCollection      string `json:"messagesCollection"`
	ListingsCollection      string `json:"listingsCollection"`
	UsersCollection         string `json:"usersCollection"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	SocketPort     int      `json:"socket_port"`
	SocketRoute    string   `json:"socket_route"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type AuthConfig struct {
	JwtSecret string `json:"jwt_secret"`
}

// RelayConfig selects the pub/sub backend: "hub" publishes straight into the
// in-process websocket hub, "redis" publishes over redis pub/sub and bridges
// back into the local hub (for multi-node deployments).
type RelayConfig struct {
	Backend       string `json:"backend"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
}

type Config struct {
	ChatDatabase MongoConfig  `json:"mongo"`
	Server       ServerConfig `json:"server"`
	Auth         AuthConfig   `json:"auth"`
	Relay        RelayConfig  `json:"relay"`
}

func LoadConfig(config_path string) (*Config, error) {
	file, err := os.ReadFile(config_path)
	if err != nil {
		return nil, err
	}

	var config Config
	err = json.Unmarshal(file, &config)
	if err != nil {
		return nil, err
	}

	// Secrets may come from the environment instead of the config file.
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JwtSecret = secret
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Relay.RedisPassword = password
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.ChatDatabase.ConversationsCollection == "" {
		config.ChatDatabase.ConversationsCollection = "conversations"
	}
	if config.ChatDatabase.MessagesCollection == "" {
		config.ChatDatabase.MessagesCollection = "messages"
	}
	if config.ChatDatabase.ListingsCollection == "" {
		config.ChatDatabase.ListingsCollection = "listings"
	}
	if config.ChatDatabase.UsersCollection == "" {
		config.ChatDatabase.UsersCollection = "users"
	}
	if config.Server.SocketRoute == "" {
		config.Server.SocketRoute = "ws"
	}
	if config.Relay.Backend == "" {
		config.Relay.Backend = "hub"
	}
}
