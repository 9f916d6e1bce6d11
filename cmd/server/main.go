package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/mailer"
	"storefront/internal/paymentclient"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "storefront",
		Usage: "storefront checkout and payment confirmation service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server and background workers",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrateDB,
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func migrateDB(_ *cli.Context) error {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer util.SyncLogger()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	util.GetLogger().Info("Migrations applied")
	return nil
}

func serve(_ *cli.Context) error {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service", zap.String("env", cfg.Server.Env))

	if cfg.Observ.TracingEnabled {
		tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint, cfg.Observ.SampleRatio)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.RunMigrations {
		if err := db.Migrate(); err != nil {
			return err
		}
		logger.Info("Migrations applied")
	}

	payments, err := paymentclient.NewClient(paymentclient.Config{
		AccessToken: cfg.Payment.AccessToken,
		BaseURL:     cfg.Payment.BaseURL,
		Timeout:     cfg.Payment.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to configure payment client: %w", err)
	}

	var sender mailer.Sender
	if cfg.Mail.Host != "" {
		smtpSender, err := mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		if err != nil {
			return err
		}
		sender = smtpSender
	} else {
		logger.Warn("SMTP_HOST not set, order emails will only be logged")
		sender = mailer.NewLogSender()
	}

	var (
		redisClient *redisclient.Client
		stockCache  service.StockCache
	)
	webhookOpts := []service.WebhookOption{}
	if cfg.Redis.Enabled {
		redisClient, err = redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisClient.Close()
		logger.Info("Redis connected")

		stockCache = redisClient
		webhookOpts = append(webhookOpts, service.WithOrderLock(redisClient, cfg.Redis.LockTTL, cfg.Redis.LockWait))
	}

	var publisher service.OrderEventPublisher
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicOrder))

		publisher = broker.NewEventPublisher(producer)
		webhookOpts = append(webhookOpts, service.WithEventPublisher(publisher))
	}

	inventoryClient := service.NewInventoryClient(db, stockCache)
	checkoutService := service.NewCheckoutService(db, payments, publisher, service.CheckoutConfig{
		SuccessURL:      cfg.Payment.SuccessURL,
		FailureURL:      cfg.Payment.FailureURL,
		PendingURL:      cfg.Payment.PendingURL,
		NotificationURL: cfg.Payment.NotificationURL,
		CurrencyID:      cfg.Payment.CurrencyID,
	})
	notifier := service.NewNotifier(sender, cfg.Notification.SalesAddress)
	webhookService := service.NewWebhookService(db, payments, notifier, webhookOpts...)
	orderService := service.NewOrderService(db, publisher)
	customerService := service.NewCustomerService(db)

	if err := inventoryClient.SyncStockToRedis(context.Background()); err != nil {
		logger.Error("Failed to sync stock to Redis", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var stockWorker *worker.StockCacheWorker
	if cfg.Kafka.Enabled && stockCache != nil {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		stockWorker = worker.NewStockCacheWorker(consumer, inventoryClient)
		go func() {
			if err := stockWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Stock cache worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Checkout:  checkoutService,
		Webhook:   webhookService,
		Orders:    orderService,
		Customers: customerService,
		Stock:     inventoryClient,
	}, cfg.Admin.APIKey, db.Ping)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error("HTTP server failed", zap.Error(err))
	}

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if stockWorker != nil {
		if err := stockWorker.Stop(); err != nil {
			logger.Error("Failed to stop stock cache worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
	return nil
}
