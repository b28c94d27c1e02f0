package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	_ "github.com/lib/pq"

	"github.com/hotel-booking-platform/payment-service/internal/breaker"
	"github.com/hotel-booking-platform/payment-service/internal/config"
	"github.com/hotel-booking-platform/payment-service/internal/gateway"
	"github.com/hotel-booking-platform/payment-service/internal/handlers"
	"github.com/hotel-booking-platform/payment-service/internal/messaging"
	"github.com/hotel-booking-platform/payment-service/internal/repository"
	"github.com/hotel-booking-platform/payment-service/internal/service"
)

func main() {
	log.Println("🚀 Payment Service starting...")

	cfg := config.Load()

	store, closeStore, err := initStore(cfg)
	if err != nil {
		log.Fatalf("Store initialization error: %v", err)
	}
	defer closeStore()

	// RabbitMQ connection
	rabbitConfig := messaging.NewRabbitMQConfig()
	rabbitClient := messaging.NewRabbitMQClient(rabbitConfig)
	if err := rabbitClient.Connect(); err != nil {
		log.Fatalf("RabbitMQ connection error: %v", err)
	}
	defer rabbitClient.Close()
	publisher := messaging.NewPublisher(rabbitClient)

	gw := initGateway(cfg)

	cb := breaker.New(breaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		ResetTimeout:     cfg.BreakerResetTimeout,
		MonitoringWindow: cfg.BreakerWindow,
	})
	cb.OnStateChange = func(from, to breaker.State) {
		log.Printf("⚡ Gateway circuit %s -> %s", from, to)
	}

	paymentService := service.NewPaymentService(store, gw, cb, publisher, service.Config{
		MaxRetries:         cfg.MaxRetries,
		RetryBaseDelay:     cfg.RetryBaseDelay,
		RetryMaxDelay:      cfg.RetryMaxDelay,
		FallbackEnabled:    cfg.FallbackEnabled,
		ExpiryStandard:     cfg.ExpiryStandard,
		ExpiryManual:       cfg.ExpiryManual,
		ExpiryBankTransfer: cfg.ExpiryBankTransfer,
		ManualPayBaseURL:   cfg.ManualPayBaseURL,
		BankName:           cfg.BankName,
		BankAccountName:    cfg.BankAccountName,
		BankAccountNumber:  cfg.BankAccountNumber,
	})
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	app := setupFiberApp()
	setupRoutes(app, paymentHandler)

	// background reconciliation sweep
	sweeperStop := make(chan struct{})
	go paymentService.RunSweeper(cfg.SweepInterval, sweeperStop)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Payment Service closing...")
		close(sweeperStop)
		if err := app.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("🌍 Payment Service running: http://localhost:%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server start error: %v", err)
	}
}

func initStore(cfg *config.Config) (service.PaymentStore, func(), error) {
	if cfg.StoreBackend == "memory" {
		log.Println("⚠️  In-memory payment store active (no persistence)")
		return repository.NewMemoryStore(), func() {}, nil
	}

	connectionString := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)

	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, nil, fmt.Errorf("database open error: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)

	if err := db.Ping(); err != nil {
		return nil, nil, fmt.Errorf("database ping error: %v", err)
	}

	log.Printf("✅ Database connection success: %s", cfg.DBName)
	return repository.NewPostgresStore(db), func() { db.Close() }, nil
}

func initGateway(cfg *config.Config) gateway.Gateway {
	if cfg.GatewayBackend == "mock" {
		log.Printf("💳 Mock payment gateway active - failure rate %.1f%%", cfg.MockFailureRate*100)
		return gateway.NewMockGateway(cfg.MockFailureRate)
	}

	return gateway.NewHostedCheckoutClient(gateway.HostedCheckoutConfig{
		BaseURL:    cfg.GatewayBaseURL,
		MerchantID: cfg.MerchantID,
		APIKey:     cfg.GatewayAPIKey,
		ReturnURL:  cfg.ReturnURL,
		CancelURL:  cfg.CancelURL,
		Timeout:    cfg.GatewayTimeout,
	})
}

func setupFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Payment Service v1.0",
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} - ${latency} | IP: ${ip}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	return app
}

func setupRoutes(app *fiber.App, paymentHandler *handlers.PaymentHandler) {
	api := app.Group("/api/v1")

	api.Get("/health", paymentHandler.HealthCheck)

	api.Post("/checkout", paymentHandler.Checkout)

	payments := api.Group("/payments")
	payments.Post("/callback", paymentHandler.GatewayCallback)
	payments.Get("/:payment_id", paymentHandler.GetPayment)
	payments.Post("/:payment_id/refund", paymentHandler.Refund)
	payments.Post("/:payment_id/cancel", paymentHandler.Cancel)

	api.Get("/bookings/:booking_id/payments", paymentHandler.GetPaymentsByBooking)

	api.Post("/admin/sweep", paymentHandler.Sweep)

	app.Use("*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Route not found",
		})
	})
}
