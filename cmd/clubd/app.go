package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"

	"clubhouse-backend/config"
	"clubhouse-backend/internal/auth"
	"clubhouse-backend/internal/calendar"
	"clubhouse-backend/internal/db"
	"clubhouse-backend/internal/lock"
	"clubhouse-backend/internal/notification"
	"clubhouse-backend/internal/reservation"
	"clubhouse-backend/internal/scheduler"
	"clubhouse-backend/internal/store"
	"clubhouse-backend/internal/timeline"
)

// app is the wired set of services shared by every subcommand.
type app struct {
	cfg          *config.Config
	store        store.Store
	timeline     *timeline.Engine
	reservations *reservation.Engine
	notifier     *notification.WorkerPool
	scheduler    *scheduler.Service
	webpush      *webpush.Options
	verifier     *auth.Verifier
	broker       *notification.AMQPSink
}

func loadApp(configPath string, logger *log.Logger) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Println("database initialized successfully")

	appStore := store.NewGormStore(gormDB)

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locker = lock.NewRedisLock(client,
			time.Duration(cfg.Redis.LockTTLSeconds)*time.Second,
			cfg.Redis.LockRetries,
			time.Duration(cfg.Redis.LockBackoffMS)*time.Millisecond)
		logger.Printf("using redis entity locks at %s", cfg.Redis.Addr)
	}

	var webpushOptions *webpush.Options
	var sinks []notification.Sink
	var broker *notification.AMQPSink
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		sinks = append(sinks, notification.NewWebPushSink(gormDB, webpushOptions))
	} else {
		logger.Println("VAPID keys are not configured; web push is disabled")
	}
	if cfg.AMQP.URL != "" {
		broker = notification.NewAMQPSink(cfg.AMQP.URL, cfg.AMQP.Queue)
		sinks = append(sinks, broker)
		logger.Printf("publishing notifications to queue %s", cfg.AMQP.Queue)
	}
	notifier := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, sinks...)

	cal := calendar.New(appStore, time.Duration(cfg.Server.CacheTTLSeconds)*time.Second)
	horizon := time.Duration(cfg.Scheduler.HorizonDays) * 24 * time.Hour
	timelineEngine := timeline.NewEngine(appStore, cal, locker, notifier, cfg.Scheduler.Location(), horizon)
	reservationEngine := reservation.NewEngine(appStore, locker, notifier, cfg.Reservations.DueSoon)

	sched := scheduler.NewService(cfg.Scheduler, scheduler.SystemClock{}).
		Add("timeline", timelineEngine).
		Add("reservations", reservationEngine)

	return &app{
		cfg:          cfg,
		store:        appStore,
		timeline:     timelineEngine,
		reservations: reservationEngine,
		notifier:     notifier,
		scheduler:    sched,
		webpush:      webpushOptions,
		verifier:     auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.ManagerRole),
		broker:       broker,
	}, nil
}

// drain delivers queued notifications and closes the broker connection.
func (a *app) drain(ctx context.Context, logger *log.Logger) {
	a.notifier.Flush(ctx)
	if a.broker == nil {
		return
	}
	if err := a.broker.Close(); err != nil {
		logger.Printf("closing broker connection: %v", err)
	}
}
