package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"chat_realtime_service/internal/api/handlers"
	apirouter "chat_realtime_service/internal/api/router"
	"chat_realtime_service/internal/chat/app"
	"chat_realtime_service/internal/chat/domain"
	"chat_realtime_service/internal/chat/hub"
	"chat_realtime_service/internal/chat/repository"
	"chat_realtime_service/internal/chat/router"
	memberapp "chat_realtime_service/internal/member/app"
	memberdomain "chat_realtime_service/internal/member/domain"
	memberrepo "chat_realtime_service/internal/member/repository"
	"chat_realtime_service/pkg/config"
	"chat_realtime_service/pkg/database"
	"chat_realtime_service/pkg/encrypt"
	"chat_realtime_service/pkg/logger"
	"chat_realtime_service/pkg/metrics"
	testtool "chat_realtime_service/pkg/test_tool"
	"chat_realtime_service/pkg/token"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	cfg.Realtime = cfg.Realtime.Defaults()
	token.Setup(cfg.JWTSecret, cfg.TokenTTL)
	token.SetupRefresh(cfg.RefreshTTL)

	if cfg.Pprof {
		testtool.StartPprof("")
	}

	ctx := context.Background()

	// 1. 建立 Mongo 連線 (chat / message / read position)
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval) * time.Second,
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongoDB database after retries", zap.Error(err))
	}
	if err := repository.EnsureIndexes(ctx, mongo.Database); err != nil {
		logger.Log.Fatal("mongo index setup failed", zap.Error(err))
	}

	// 2. 建立 PostgreSQL 連線 (member: pgx, notification: gorm)
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
	pgConn := database.Connection{
		ConnectStr:    dsn,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	}
	pool, err := database.NewDatabaseConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL database after retries", zap.Error(err))
	}
	if err := memberrepo.EnsureSchema(ctx, pool); err != nil {
		logger.Log.Fatal("member schema setup failed", zap.Error(err))
	}
	gormDB, err := database.NewGormConnection(pgConn, &domain.Notification{})
	if err != nil {
		logger.Log.Fatal("Unable to open gorm connection", zap.Error(err))
	}

	// 3. 建立 Redis 連線 (presence snapshot cache)
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(cfg.Redis.Addr, masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal("connect redis err", zap.Error(err))
	}

	// 4. event journal / attachment storage
	journal, err := openJournal(cfg.Journal, redisClient)
	if err != nil {
		logger.Log.Fatal("event journal setup failed", zap.Error(err))
	}
	attachments := openAttachments(cfg.MinIO)

	// 5. 初始化 Repository
	chatRepo := repository.NewMongoChatRepository(mongo.Database)
	msgRepo := repository.NewMongoChatMessageRepository(mongo.Database)
	readRepo := repository.NewMongoReadPositionRepository(mongo.Database)
	notifyRepo := repository.NewNotificationRepository(gormDB)
	memberRepo := memberrepo.NewMemberRepository(pool)
	presenceCache := database.NewRedisRepository[memberdomain.PresenceSnapshot](redisClient, "presence:")
	refreshCache := database.NewRedisRepository[memberdomain.RefreshSessions](redisClient, "refresh:")

	// 6. 初始化 UseCases
	memberUC := memberapp.NewMemberUseCase(memberRepo, cfg.Realtime.PresenceTTL, presenceCache, refreshCache, encrypt.HashPassword)

	registry := hub.NewRegistry()
	broadcaster := hub.NewBroadcaster(registry)
	presence := hub.NewPresence(registry, broadcaster, memberUC)
	typing := hub.NewTyping(broadcaster, cfg.Realtime.TypingTTL, cfg.Realtime.TypingSweepInterval)

	notifyUC := app.NewNotificationUseCase(chatRepo, notifyRepo, broadcaster)
	messageUC := app.NewMessageUseCase(chatRepo, msgRepo, readRepo, notifyUC, broadcaster, journal)
	readUC := app.NewReadReceiptUseCase(chatRepo, msgRepo, readRepo, broadcaster, journal)
	chatUC := app.NewChatUseCase(chatRepo, registry, typing)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	go typing.Run(sweepCtx)

	// 7. 啟動 Fiber
	r := fiber.New(fiber.Config{
		BodyLimit: bodyLimit(cfg.MinIO.MaxFileBytes),
	})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Log.Fatal("Failed to open access log file", zap.Error(err))
	}

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))
	r.Use(metrics.FiberMiddleware())

	// 注册路由
	apirouter.RegisterRoutes(r,
		handlers.NewMemberHandler(memberUC, presence, chatUC),
		handlers.NewChatHandler(chatUC, messageUC, readUC, notifyUC, attachments, cfg.MinIO.MaxFileBytes),
	)
	router.RegisterRoutes(r, app.NewChatWebsocketHandler(chatRepo, messageUC, readUC, registry, broadcaster, presence, typing, cfg.Realtime))

	// Listen
	port := ":" + cfg.Port
	go func() {
		logger.Log.Info("Chat Service listening", zap.String("port", port))
		if err := r.Listen(port); err != nil {
			logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		ctx,
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"fiber": func(ctx context.Context) error {
				return r.ShutdownWithContext(ctx)
			},
			"typing-sweeper": func(context.Context) error {
				stopSweep()
				return nil
			},
			"journal": func(context.Context) error {
				return journal.Close()
			},
			"stores": func(ctx context.Context) error {
				pool.Close()
				if sqlDB, err := gormDB.DB(); err == nil {
					_ = sqlDB.Close()
				}
				_ = redisClient.Close()
				_ = file.Close()
				return mongo.Close(ctx)
			},
		},
	)

	exitCode := <-wait
	logger.Log.Info("Chat Service exited", zap.Int("code", exitCode))
	logger.Log.Sync()
	os.Exit(exitCode)
}

// openJournal event journal by driver, none when unset
func openJournal(cfg config.Journal, redisClient *redis.Client) (repository.EventJournal, error) {
	switch cfg.Driver {
	case config.JournalKafka:
		writer, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
			Brokers:       cfg.Brokers,
			Topic:         cfg.Topic,
			Async:         true,
			RetryCount:    cfg.RetryCount,
			RetryInterval: time.Duration(cfg.RetryInterval),
		})
		if err != nil {
			return nil, err
		}
		return repository.NewKafkaJournal(writer), nil

	case config.JournalRabbitMQ:
		conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
			ConnectStr:    cfg.URL,
			RetryCount:    cfg.RetryCount,
			RetryInterval: time.Duration(cfg.RetryInterval),
		})
		if err != nil {
			return nil, err
		}
		ch, err := database.GetRabbitMQChannelWithRetry(conn, cfg.RetryCount, time.Duration(cfg.RetryInterval))
		if err != nil {
			return nil, err
		}
		return repository.NewRabbitJournal(database.NewRabbitRepository(ch), cfg.Exchange)

	case config.JournalRedis:
		return repository.NewRedisJournal(redisClient, cfg.Channel), nil
	}

	logger.Log.Info("event journal disabled")
	return repository.NoopJournal{}, nil
}

// openAttachments minio attachment storage, nil disables POST /attachments
func openAttachments(cfg config.MinIOConfig) repository.AttachmentStore {
	if cfg.Endpoint == "" {
		logger.Log.Info("attachment storage disabled")
		return nil
	}
	client, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:      cfg.Endpoint,
		User:          cfg.User,
		Password:      cfg.Password,
		BucketName:    cfg.Bucket,
		UseSSL:        cfg.UseSSL,
		RetryCount:    cfg.RetryCount,
		RetryInterval: time.Duration(cfg.RetryInterval),
	})
	if err != nil || client == nil {
		logger.Log.Error("minio connect failed, attachment storage disabled", zap.Error(err))
		return nil
	}
	return repository.NewMinIOAttachmentStore(client, cfg.PresignTTL)
}

func bodyLimit(maxFileBytes int64) int {
	const base = 4 * 1024 * 1024
	if maxFileBytes <= 0 {
		return base
	}
	return int(maxFileBytes)*4 + base
}
