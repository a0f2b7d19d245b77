package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/CCVpopular/appchatonlinev2/internal/api"
	"github.com/CCVpopular/appchatonlinev2/internal/config"
	"github.com/CCVpopular/appchatonlinev2/internal/crypto"
	"github.com/CCVpopular/appchatonlinev2/internal/events"
	"github.com/CCVpopular/appchatonlinev2/internal/hub"
	"github.com/CCVpopular/appchatonlinev2/internal/logger"
	"github.com/CCVpopular/appchatonlinev2/internal/metrics"
	"github.com/CCVpopular/appchatonlinev2/internal/notify"
	"github.com/CCVpopular/appchatonlinev2/internal/presence"
	"github.com/CCVpopular/appchatonlinev2/internal/service"
	"github.com/CCVpopular/appchatonlinev2/internal/storage"
	mongostore "github.com/CCVpopular/appchatonlinev2/internal/store/mongo"
	"github.com/CCVpopular/appchatonlinev2/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.App.Env != "production")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	metrics.Init()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(cfg.Metrics.Addr); err != nil {
				zlog.Errorw("metrics server stopped", "err", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	mongoClient, err := mongostore.Connect(ctx, cfg.Mongo.URI)
	cancel()
	if err != nil {
		zlog.Fatalw("mongo connect", "err", err)
	}
	db := mongoClient.Database(cfg.Mongo.DB)
	directRepo := mongostore.NewDirectRepository(db)
	groupRepo := mongostore.NewGroupRepository(db)
	directory := mongostore.NewDirectory(db)

	cipher, err := crypto.NewFromBase64(cfg.Crypto.Key)
	if err != nil {
		zlog.Fatalw("load cipher key", "err", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	instanceID := uuid.NewString()
	pres := presence.NewStore(rdb, cfg.Redis.Prefix, instanceID, 24*time.Hour)

	journal := events.NewJournal(cfg.Kafka.Brokers, cfg.Kafka.TopicMessages)
	defer func() { _ = journal.Close() }()

	blobs, err := storage.NewS3Store(context.Background(), cfg.S3.Region, cfg.S3.Bucket, cfg.S3.Endpoint, cfg.S3.PublicRead, cfg.PresignTTL)
	if err != nil {
		zlog.Fatalw("s3 init", "err", err)
	}

	gateway := notify.NewHTTPGateway(cfg.Push.Endpoint, cfg.Push.APIKey, cfg.PushTimeout, notify.BreakerSettings{
		MaxFailures: cfg.Push.MaxFailures,
		Interval:    time.Duration(cfg.Push.IntervalSec) * time.Second,
		OpenFor:     time.Duration(cfg.Push.OpenSec) * time.Second,
	}, zlog)
	rtc := notify.NewHTTPRTCService(cfg.RTC.Endpoint, cfg.RTC.APIKey, cfg.PushTimeout)
	dispatcher := notify.NewDispatcher(gateway, rtc, cfg.RTCTokenTTL, zlog)

	router := hub.NewRouter(hub.AllowAll())
	router.Publish = func(ctx context.Context, room string, frame []byte) {
		if err := pres.PublishFanout(ctx, room, frame); err != nil {
			zlog.Warnw("fanout publish failed", "room", room, "err", err)
		}
	}

	bridgeCtx, stopBridge := context.WithCancel(context.Background())
	go pres.RunFanoutBridge(bridgeCtx, router, zlog)

	svc := service.New(service.Deps{
		Cipher:   cipher,
		Direct:   directRepo,
		Groups:   groupRepo,
		Users:    directory,
		Router:   router,
		Notifier: dispatcher,
		Blobs:    blobs,
		Journal:  journal,
		TempDir:  cfg.App.TempDir,
		Log:      zlog,
	})

	wsServer := ws.NewServer(router, svc, pres, ws.Config{
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
		SendBuffer:     cfg.WS.SendBuffer,
	}, zlog)

	app := api.NewServer(svc, wsServer, zlog).App(cfg.App.RateLimitPerMin)

	go func() {
		zlog.Infow("listening", "port", cfg.App.Port, "instance", instanceID)
		if err := app.Listen(":" + cfg.App.PortString()); err != nil {
			zlog.Fatalw("server stopped", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Infow("shutting down")
	stopBridge()
	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		zlog.Errorw("shutdown", "err", err)
	}
	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mongoClient.Disconnect(disconnectCtx); err != nil {
		zlog.Errorw("mongo disconnect", "err", err)
	}
	_ = rdb.Close()
}
