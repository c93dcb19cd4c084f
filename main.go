package main

import (
	"log"

	"github.com/Aashish23092/invoice-line-verification/client"
	"github.com/Aashish23092/invoice-line-verification/config"
	"github.com/Aashish23092/invoice-line-verification/handler"
	"github.com/Aashish23092/invoice-line-verification/repository"
	"github.com/Aashish23092/invoice-line-verification/service"

	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize configuration
	cfg := config.LoadConfig()
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize the recognition engine
	var recognizer service.Recognizer
	switch cfg.OCREngine {
	case "azure":
		recognizer = client.NewAzureClient(cfg.AzureEndpoint, cfg.AzureKey)
	case "paddle":
		recognizer = client.NewPaddleClient(cfg.PaddleAPIURL)
	default:
		tesseractClient := client.NewTesseractClient(cfg.TesseractDataPath)
		defer tesseractClient.Close()
		recognizer = tesseractClient
	}
	log.Printf("Using %s recognition engine", cfg.OCREngine)

	// Results are only persisted when a database is configured
	var store service.ResultStore
	if cfg.DatabaseURL != "" {
		repo, err := repository.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open verification store: %v", err)
		}
		store = repo
	} else {
		log.Println("DATABASE_URL not set, verification results will not be stored")
	}

	// Initialize service layer
	invoiceService := service.NewInvoiceService(recognizer, service.NewPDFProcessor(), store, cfg.Pipeline)

	// Initialize handler layer
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, cfg.MaxFileSize)

	// Setup Gin router
	router := gin.Default()
	router.MaxMultipartMemory = cfg.MaxFileSize

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "Invoice Line Verification",
			"engine":  cfg.OCREngine,
		})
	})

	// API routes
	api := router.Group("/api/v1")
	{
		invoices := api.Group("/invoices")
		{
			invoices.POST("/regions/verify", invoiceHandler.VerifyRegion)
			invoices.POST("/regions/verify-batch", invoiceHandler.VerifyBatch)
			invoices.POST("/scan", invoiceHandler.ScanInvoice)
			invoices.GET("/:document_id", invoiceHandler.GetVerification)
		}
	}

	// Start server
	log.Printf("Starting Invoice Line Verification Service on port %s", cfg.ServerPort)
	if err := router.Run(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
