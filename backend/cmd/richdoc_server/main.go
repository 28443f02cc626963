package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"richdocServer/backend/internal/authservice"
	"richdocServer/backend/internal/cache"
	"richdocServer/backend/internal/collab"
	"richdocServer/backend/internal/httpapi/middleware"
	"richdocServer/backend/internal/store"
	"richdocServer/backend/internal/ws"
)

type ServerConfig struct {
	Running struct {
		Port int `mapstructure:"Port"`
	} `mapstructure:"Running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"Mysql"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"Redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"Kafka"`
}

func initConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	v := viper.New()
	v.SetConfigName("richdocConfig")
	v.SetConfigType("yaml")
	// works from the project root or from backend/
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("connect redis failed: %v", err)
	}
	defer rdb.Close()

	gormDB, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("connect mysql failed: %v", err)
	}

	db, err := sql.Open("mysql", cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("open mysql failed: %v", err)
	}
	defer db.Close()

	// SyncProducer requires Return.Successes.
	kafkaCfg := sarama.NewConfig()
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("connect kafka failed: %v", err)
	}
	defer producer.Close()

	presenceCache := cache.NewRedisPresence(rdb)
	hub := ws.NewHub(presenceCache)
	snapshotStore := store.NewSnapshotStore(db)
	documentStore := store.NewDocumentStore(gormDB)
	userStore := store.NewUserStore(db)

	kafkaSem := collab.NewSemaphoreControl(collab.DefaultMaxSemaphore)
	wsSem := collab.NewSemaphoreControl(collab.DefaultMaxSemaphore)

	dispatcher := collab.NewKafkaDispatcher(producer, cfg.Kafka.Topic, kafkaSem, collab.KafkaDispatcherOptions{
		QueueSize:   10_000,
		Workers:     4,
		MaxRetry:    3,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  1 * time.Second,
	})
	defer dispatcher.Close()

	svc := collab.NewInMemoryService(snapshotStore, documentStore, dispatcher)
	manager := ws.NewManager(hub, svc, wsSem)
	authHandler := authservice.NewHandler(userStore)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		// allow any origin, including the "null" Origin of file:// pages;
		// credentials stay off since tokens travel in Authorization
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "docId"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	auth := r.Group("/v1/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.GET("/verify", authHandler.Verify)

	collabGroup := r.Group("/collab")
	collabGroup.Use(middleware.AuthMiddleware())
	collabGroup.GET("/ws", manager.WebSocketConnect)
	collabGroup.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})
	collabGroup.GET("/rooms", func(c *gin.Context) {
		docs, err := presenceCache.GetDocuments(c.Request.Context())
		if err != nil {
			c.JSON(500, gin.H{"error": "list rooms failed"})
			return
		}
		c.JSON(200, gin.H{"documents": docs})
	})

	if err := r.Run(fmt.Sprintf(":%d", cfg.Running.Port)); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
