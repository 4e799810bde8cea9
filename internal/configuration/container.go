package configuration

import (
	"context"
	"fmt"
	"time"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/db"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/handler"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/hub"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/model"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/relay"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/repo"
	"github.com/cemgunay/coleaseum-webapp-sub000/internal/service"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Container struct {
	ChatHandler    handler.ChatHandler
	MonitorHandler handler.MonitorHandler
	ChatService    service.ChatService
	Hub            *hub.Hub
	Config         Config
	Logger         *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
	redisPub    *relay.RedisPublisher
	subCancel   context.CancelFunc
}

func BuildContainer(configPath string) (*Container, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	logger, _ := zap.NewProduction()

	conversationMongo := db.NewRepository[model.Conversation](con, config.ChatDatabase.ConversationsCollection)
	messageMongo := db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection)
	listingMongo := db.NewRepository[model.Listing](con, config.ChatDatabase.ListingsCollection)
	userMongo := db.NewRepository[model.User](con, config.ChatDatabase.UsersCollection)

	conversationRepo := repo.NewConversationRepository(con, conversationMongo, logger)
	messageRepo := repo.NewMessageRepository(con, messageMongo, conversationMongo, logger)
	listingRepo := repo.NewListingRepository(listingMongo, logger)
	userRepo := repo.NewUserRepository(con, userMongo)

	// The hub is both the websocket fabric and (in single-node mode) the
	// relay publisher. The service is its subscription authorizer, wired in
	// after construction.
	chatHub := hub.NewHub(nil, config.Server.AllowedOrigins)

	container := &Container{
		Hub:         chatHub,
		Config:      *config,
		Logger:      logger,
		mongoClient: con,
	}

	var publisher relay.Publisher = chatHub
	if config.Relay.Backend == "redis" {
		redisPub, err := relay.NewRedisPublisher(config.Relay.RedisAddr, config.Relay.RedisPassword, config.Relay.RedisDB, logger)
		if err != nil {
			return nil, err
		}
		publisher = redisPub
		container.redisPub = redisPub

		subCtx, cancel := context.WithCancel(context.Background())
		container.subCancel = cancel
		subscriber := relay.NewRedisSubscriber(redisPub.Client(), chatHub, logger)
		go subscriber.Run(subCtx)
	}

	eventRelay := relay.New(publisher, logger)

	chatService := service.NewChatService(conversationRepo, messageRepo, listingRepo, userRepo, eventRelay, logger)
	chatHub.SetAuthorizer(chatService)

	container.ChatService = chatService
	container.ChatHandler = handler.NewChatHandler(chatService)
	container.MonitorHandler = handler.NewMonitorHandler(hub.NewMonitorService(chatHub))

	return container, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.subCancel != nil {
		c.subCancel()
	}
	if c.redisPub != nil {
		_ = c.redisPub.Close()
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	// Close MongoDB connection pool
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
