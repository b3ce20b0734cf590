package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	_ "github.com/lib/pq"

	"github.com/harmancioglue/chatpay-engine/internal/config"
	"github.com/harmancioglue/chatpay-engine/internal/gateway"
	"github.com/harmancioglue/chatpay-engine/internal/handlers"
	"github.com/harmancioglue/chatpay-engine/internal/messaging"
	"github.com/harmancioglue/chatpay-engine/internal/ocr"
	"github.com/harmancioglue/chatpay-engine/internal/queue"
	"github.com/harmancioglue/chatpay-engine/internal/receipt"
	"github.com/harmancioglue/chatpay-engine/internal/reference"
	"github.com/harmancioglue/chatpay-engine/internal/repository"
	"github.com/harmancioglue/chatpay-engine/internal/service"
)

func main() {
	log.Println("🚀 Payment engine starting...")

	cfg := config.Load()

	db, err := initDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("Database connection error: %v", err)
	}
	defer db.Close()

	rabbitConfig := messaging.NewRabbitMQConfig()
	rabbitClient := messaging.NewRabbitMQClient(rabbitConfig)
	if err := rabbitClient.Connect(); err != nil {
		log.Fatalf("RabbitMQ connection error: %v", err)
	}
	defer rabbitClient.Close()

	publisher := messaging.NewPublisher(rabbitClient)
	consumer := messaging.NewConsumer(rabbitClient, "payment-engine-queue", "payment-engine")

	paymentRepo := repository.NewPaymentRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	receiptIndex, err := repository.NewSQLiteReceiptIndex(
		getEnvOrDefault("RECEIPT_INDEX_PATH", "receipts.db"))
	if err != nil {
		log.Fatalf("Receipt index error: %v", err)
	}
	defer receiptIndex.Close()

	extractor := ocr.NewExtractor(
		ocr.NoopPreprocessor{},
		ocr.NewTesseractProvider(),
		ocr.NewOCRSpaceProvider(cfg.OCR.OCRSpaceAPIKey),
	)

	paymentService := service.NewPaymentService(
		paymentRepo,
		orderRepo,
		reference.NewGenerator(paymentRepo),
		extractor,
		publisher,
		cfg.Business,
		cfg.Payment,
		cfg.OCR.Provider,
	)

	receiptService := service.NewReceiptService(
		paymentRepo,
		orderRepo,
		receiptIndex,
		receipt.TextRenderer{Dir: getEnvOrDefault("RECEIPT_DIR", "receipts")},
		publisher,
		cfg.Business,
	)

	chatGateway := gateway.NewSimulatedChatGateway(0.1)

	orchestrator := queue.NewOrchestrator()
	if err := service.RegisterQueues(orchestrator, paymentService, receiptService, chatGateway); err != nil {
		log.Fatalf("Queue registration error: %v", err)
	}
	orchestrator.Start()
	defer orchestrator.Stop()

	paymentHandler := handlers.NewPaymentHandler(paymentService, receiptService, orchestrator)

	app := setupFiberApp()
	setupRoutes(app, paymentHandler)

	go func() {
		log.Println("🐰 RabbitMQ event consumption starting...")
		if err := paymentHandler.StartConsuming(consumer); err != nil {
			log.Printf("RabbitMQ consumption error: %v", err)
		}
	}()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("🛑 Payment engine closing...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("🌍 Payment engine running: http://localhost:%s", cfg.HTTP.Port)

	if err := app.Listen(":" + cfg.HTTP.Port); err != nil {
		log.Fatalf("Server start error: %v", err)
	}
}

// initDatabase retries connection establishment a fixed number of times
// before the service is considered unavailable. Startup-time only.
func initDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("database open error: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)

	for attempt := 1; ; attempt++ {
		err = db.Ping()
		if err == nil {
			break
		}

		log.Printf("Database ping error (attempt %d/%d): %v", attempt, cfg.RetryCount, err)
		if attempt >= cfg.RetryCount {
			return nil, fmt.Errorf("database unavailable after %d attempts: %v", attempt, err)
		}
		time.Sleep(cfg.RetryDelay)
	}

	log.Printf("✅ Database connection success: %s", cfg.Name)
	return db, nil
}

func setupFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Payment Engine v1.0",
		ErrorHandler: errorHandler,
		BodyLimit:    10 * 1024 * 1024, // receipt images arrive base64-encoded
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

	orders := api.Group("/orders")
	orders.Post("/:order_id/instructions", paymentHandler.IssueInstructions)
	orders.Get("/:order_id/payment", paymentHandler.GetPaymentByOrderID)

	payments := api.Group("/payments")
	payments.Post("/", paymentHandler.CreatePayment)
	payments.Post("/verify", paymentHandler.SubmitVerification)
	payments.Get("/:id", paymentHandler.GetPayment)
	payments.Post("/:id/fail", paymentHandler.MarkFailed)
	payments.Post("/:id/refund", paymentHandler.Refund)
	payments.Get("/:id/receipt", paymentHandler.GetReceipt)

	api.Get("/queues", paymentHandler.QueueStats)

	app.Use("*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Route not found",
		})
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	log.Printf("Error: %v", err)

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": message,
		"error":   err.Error(),
	})
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
