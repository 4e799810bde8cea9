package main

import (
	"log"
	"os"

	approuters "github.com/cemgunay/coleaseum-webapp-sub000/internal/app_routers"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/configuration"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; the config file carries the rest.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	container, err := configuration.BuildContainer(configPath)
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}

	// Ensure cleanup on shutdown
	defer container.Close()

	// Setup routers
	approuters.StartServer(container)
}
