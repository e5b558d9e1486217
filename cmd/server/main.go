package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"vibration-backend/internal/database"
	"vibration-backend/internal/models"
	"vibration-backend/internal/mqtt"
	"vibration-backend/internal/project"
	"vibration-backend/internal/services"
	"vibration-backend/pkg/config"
)

func main() {
	log.Println("Starting Vibration Telemetry Backend...")

	// Load configuration
	cfg := config.Load()

	// Initialize ClickHouse database
	db, err := database.NewClickHouseDB(
		cfg.ClickHouseAddr,
		cfg.ClickHouseDB,
		cfg.ClickHouseUser,
		cfg.ClickHousePass,
	)
	if err != nil {
		log.Fatalf("Failed to initialize ClickHouse: %v", err)
	}
	defer db.Close()

	// Project metadata provider
	provider := project.NewFileProvider(cfg.ProjectFile)
	if _, err := provider.GetProjectData(cfg.ProjectName); err != nil {
		log.Fatalf("Failed to load project %q: %v", cfg.ProjectName, err)
	}

	// === Initialize telemetry handler ===
	handlerConfig := services.Config{
		Project: cfg.ProjectName,
		MQTT: mqtt.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		},
		QueueSize: cfg.QueueSize,
	}

	callbacks := services.Callbacks{
		OnStatus: func(s models.Status) {
			log.Printf("Status: %s", s)
		},
	}

	handler, err := services.NewTelemetryHandler(handlerConfig, provider, db, callbacks)
	if err != nil {
		log.Fatalf("Failed to create telemetry handler: %v", err)
	}

	if err := handler.Start(); err != nil {
		log.Fatalf("Failed to start telemetry handler: %v", err)
	}

	log.Println("=== Vibration Telemetry Backend is running ===")
	log.Printf("Project:    %s (%s)", cfg.ProjectName, cfg.ProjectFile)
	log.Printf("Broker:     %s", cfg.MQTTBroker)
	log.Printf("ClickHouse: %s/%s", cfg.ClickHouseAddr, cfg.ClickHouseDB)
	log.Println("Press Ctrl+C to exit...")

	// === Wait for interrupt signal ===
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// === Graceful shutdown ===
	log.Println("Shutdown signal received, stopping services...")
	handler.Stop()

	log.Println("Shutdown complete. Goodbye!")
}
