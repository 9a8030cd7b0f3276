package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"direct_chat_service/internal/api/handlers"
	"direct_chat_service/internal/api/router"
	authapp "direct_chat_service/internal/auth/app"
	authdomain "direct_chat_service/internal/auth/domain"
	authrepo "direct_chat_service/internal/auth/repository"
	chatapp "direct_chat_service/internal/chat/app"
	"direct_chat_service/internal/chat/repository"
	"direct_chat_service/pkg/config"
	"direct_chat_service/pkg/database"
	"direct_chat_service/pkg/encrypt"
	"direct_chat_service/pkg/logger"
	testtool "direct_chat_service/pkg/test_tool"
	"direct_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath).WithDefaults()
	if cfg.Port == "" {
		cfg.Port = config.EnvConfig.ChatServicePort
	}
	token.Configure(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)

	ctx := context.Background()

	// 1. PostgreSQL: profiles, messages (pgx) and auth_accounts (gorm)
	pgURI := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
	pgConn := database.Connection{
		ConnectStr:    pgURI,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	}
	pool, err := database.NewDatabaseConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgres after retries",
			zap.String("host", cfg.PostgreSQL.Host), zap.Error(err))
	}
	defer pool.Close()
	if err := repository.EnsureSchema(ctx, pool); err != nil {
		logger.Log.Fatal("ensure schema", zap.Error(err))
	}

	gormDB, err := database.NewGormConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to open gorm connection", zap.Error(err))
	}
	accountRepo := authrepo.NewAccountRepository(gormDB)
	if err := accountRepo.AutoMigrate(); err != nil {
		logger.Log.Fatal("auto migrate auth_accounts", zap.Error(err))
	}

	// 2. Redis: sessions, realtime and presence
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.Addr, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}
	defer redisClient.Close()
	pubsub := repository.NewRedisPubSub(redisClient, cfg.Realtime.RetryInterval)

	// 3. messages store
	var msgRepo repository.MessageRepository
	switch cfg.Store.Messages {
	case "mongo":
		mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
		mongo, err := database.NewMongoDB(ctx,
			database.Connection{
				ConnectStr:    mongoURI,
				RetryCount:    cfg.MongoSQL.RetryCount,
				RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
			},
			cfg.MongoSQL.Database)
		if err != nil {
			logger.Log.Fatal("Unable to connect to mongoDB database after retries",
				zap.String("host", cfg.MongoSQL.Host), zap.Error(err))
		}
		defer mongo.Close(ctx)
		if err := repository.EnsureMongoIndexes(ctx, mongo.Database); err != nil {
			logger.Log.Fatal("ensure mongo indexes", zap.Error(err))
		}
		msgRepo = repository.NewMongoMessageRepository(mongo.Database)
	default:
		msgRepo = repository.NewMessageRepository(pool)
	}

	// 4. insert notifications
	realtime := newRealtime(cfg, pubsub)
	msgRepo = repository.NewNotifyingMessageRepository(msgRepo, realtime)

	profileRepo := repository.NewProfileRepository(pool)
	presence := repository.NewRedisPresenceChannel(redisClient, pubsub, cfg.Presence.Channel, cfg.Presence.StaleAfter)

	// 5. profile images, optional
	var avatars repository.AvatarStore
	if cfg.MinIO.Endpoint != "" {
		minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
			Endpoint:      cfg.MinIO.Endpoint,
			User:          cfg.MinIO.User,
			Password:      cfg.MinIO.Password,
			BucketName:    cfg.MinIO.Bucket,
			UseSSL:        cfg.MinIO.UseSSL,
			RetryCount:    cfg.MinIO.RetryCount,
			RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
		})
		if err != nil {
			logger.Log.Warn("minIO unavailable, contacts are served without avatars", zap.Error(err))
		} else {
			avatars = repository.NewMinIOAvatarStore(minioClient, cfg.MinIO.URLExpiry)
		}
	}

	// 6. auth
	sessionStore := database.NewRedisRepository[authdomain.Session](redisClient)
	authUC := authapp.NewAuthUseCase(accountRepo, profileRepo, cfg.Auth.SessionTTL, sessionStore, encrypt.HashPassword, cfg.Auth.Issuer)

	deps := chatapp.DashboardDeps{
		Auth:      authUC,
		Profiles:  profileRepo,
		Messages:  msgRepo,
		Realtime:  realtime,
		Presence:  presence,
		Avatars:   avatars,
		Timeout:   cfg.RequestTimeout,
		Heartbeat: cfg.Presence.Heartbeat,
	}

	// 7. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	router.RegisterRoutes(r,
		authapp.NewAuthHandler(authUC, cfg.RequestTimeout),
		handlers.NewRouteHandler(authUC, cfg.RequestTimeout),
		chatapp.NewChatWebsocketHandler(deps),
	)

	testtool.StartPprof()

	port := ":" + cfg.Port
	logger.Log.Info("Chat Service listening", zap.String("port", port), zap.String("messages", cfg.Store.Messages), zap.String("realtime", cfg.Realtime.Driver))
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}

// newRealtime picks the insert notification transport
func newRealtime(cfg config.Chat, pubsub *repository.RedisPubSub) repository.Realtime {
	if cfg.Realtime.Driver != "kafka" {
		return pubsub
	}

	conn := database.KafkaConnection{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topic,
		RetryCount:    cfg.Kafka.RetryCount,
		RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
	}
	writer, err := database.NewKafkaWriterWithRetry(conn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.Error(err))
	}
	return repository.NewKafkaRealtime(writer, func() *kafka.Reader {
		return database.NewKafkaReader(conn)
	}, cfg.Realtime.RetryInterval)
}
