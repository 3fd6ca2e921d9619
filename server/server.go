package server

import (
	"context"
	"strings"
	"time"

	"SmartInventory/config"
	"SmartInventory/handlers"
	"SmartInventory/kafka"
	"SmartInventory/limiter"
	custommiddleware "SmartInventory/middleware"
	"SmartInventory/models"
	"SmartInventory/redis"
	"SmartInventory/services"

	"github.com/IBM/sarama"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Server struct {
	Echo   *echo.Echo
	DB     *gorm.DB
	Config *config.Config

	Redis    *redis.RedisClient
	Hub      *handlers.Hub
	Producer *kafka.Producer
	Consumer *kafka.Consumer
	Limiter     *limiter.Manager
	AuthLimiter *limiter.Manager

	AuthHandler     *handlers.AuthHandler
	CategoryHandler *handlers.CategoryHandler
	ProductHandler  *handlers.ProductHandler
	TeamHandler     *handlers.TeamHandler
	POSHandler      *handlers.POSHandler
	ChatHandler     *handlers.ChatWebSocketHandler

	consumerCancel context.CancelFunc
}

func NewServer() *Server {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := models.AutoMigrateAll(db); err != nil {
		log.Fatal("Failed to auto-migrate database:", err)
	}

	// Redis 可选：不可用时在线列表、限速、营收汇总降级
	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, presence cache and rate limiting disabled:", err)
		redisClient = nil
	}

	// 聊天消息用令牌桶平滑突发，登录注册用固定窗口
	var limiterManager, authLimiter *limiter.Manager
	if redisClient != nil {
		limiterManager = limiter.NewManager(redisClient.Client, &limiter.TokenBucketStrategy{})
		authLimiter = limiter.NewManager(redisClient.Client, &limiter.FixedWindowStrategy{})
	}

	// Kafka 可选：销售事件流
	var producer *kafka.Producer
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		saramaCfg, err := buildSaramaConfig(&cfg.Kafka)
		if err != nil {
			log.Fatal("Failed to build Kafka config:", err)
		}
		producer, err = kafka.NewProducer(cfg.Kafka.Brokers, saramaCfg)
		if err != nil {
			log.Fatal("Failed to create Kafka producer:", err)
		}

		if redisClient != nil {
			consumerCfg, err := buildSaramaConfig(&cfg.Kafka)
			if err != nil {
				log.Fatal("Failed to build Kafka consumer config:", err)
			}
			consumer, err = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID,
				[]string{cfg.Kafka.SalesTopic}, consumerCfg, kafka.NewSalesHandler(redisClient))
			if err != nil {
				log.Fatal("Failed to create Kafka consumer:", err)
			}
		}
	}

	// 初始化 Echo
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.Server.FrontendOrigin},
		AllowMethods:     []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.PATCH},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		ExposeHeaders:    []string{echo.HeaderContentLength},
		MaxAge:           86400,
	}))

	authService := services.NewAuthService(db, &cfg.Auth)
	oauthService := services.NewOAuthService(&cfg.Auth)
	chatService := services.NewChatService(db)
	teamService := services.NewTeamService(db)
	posService := services.NewPOSService(db, producer, cfg.Kafka.SalesTopic)

	hub := handlers.NewHub(redisClient)

	s := &Server{
		Echo:            e,
		DB:              db,
		Config:          &cfg,
		Redis:           redisClient,
		Hub:             hub,
		Producer:        producer,
		Consumer:        consumer,
		Limiter:         limiterManager,
		AuthLimiter:     authLimiter,
		AuthHandler:     handlers.NewAuthHandler(authService, oauthService, &cfg),
		CategoryHandler: handlers.NewCategoryHandler(db),
		ProductHandler:  handlers.NewProductHandler(db),
		TeamHandler:     handlers.NewTeamHandler(teamService),
		POSHandler:      handlers.NewPOSHandler(posService, redisClient),
		ChatHandler: handlers.NewChatWebSocketHandler(authService, chatService, hub,
			redisClient, limiterManager, cfg.Server.FrontendOrigin),
	}

	authMiddleware := custommiddleware.AuthMiddleware(authService)
	s.SetupRoutes(authMiddleware)

	if consumer != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.consumerCancel = cancel
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("Kafka consumer stopped:", err)
			}
		}()
	}

	return s
}

func buildSaramaConfig(cfg *config.KafkaConfig) (*sarama.Config, error) {
	if strings.HasPrefix(cfg.Mechanism, "SCRAM") {
		return kafka.NewSaramaConfigWithSCRAM(cfg, cfg.Mechanism)
	}
	return kafka.NewSaramaConfig(cfg)
}

func (s *Server) Start(addr string) {
	log.Fatal(s.Echo.Start(addr))
}

// Shutdown 收尾：停消费、断连接、停hub
func (s *Server) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if s.consumerCancel != nil {
		s.consumerCancel()
	}
	if s.Consumer != nil {
		s.Consumer.Close()
	}
	if s.Producer != nil {
		s.Producer.Close()
	}
	s.Hub.Stop()
	if s.Redis != nil {
		s.Redis.Close()
	}
	if err := s.Echo.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown:", err)
	}
}
