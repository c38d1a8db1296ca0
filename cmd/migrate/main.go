package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"clicktrack/internal/config"
	"clicktrack/internal/container"
	"clicktrack/pkg/logger"
	"clicktrack/pkg/migrations"
)

const usage = "Usage: go run ./cmd/migrate [up|down|version|rotate-token|set-destination <phone>]"

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}
	command := os.Args[1]

	// config.Load reads .env when present
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch command {
	case "up", "down", "version":
		if err := runMigration(command, cfg, appLog); err != nil {
			log.Fatalf("Migration %s failed: %v", command, err)
		}

	case "rotate-token":
		c := openContainer(ctx, cfg, appLog)
		defer c.Close()

		token, rotatedAt, err := c.Tokens.Rotate(ctx)
		if err != nil {
			log.Fatalf("Failed to rotate token: %v", err)
		}
		fmt.Printf("✅ Token rotated at %s\n", rotatedAt.UTC().Format(time.RFC3339))
		fmt.Printf("  token: %s\n", token)

	case "set-destination":
		if len(os.Args) < 3 {
			fmt.Println(usage)
			os.Exit(1)
		}
		c := openContainer(ctx, cfg, appLog)
		defer c.Close()

		phone, err := c.Services.Settings.SetDestination(ctx, os.Args[2])
		if err != nil {
			log.Fatalf("Failed to set destination: %v", err)
		}
		fmt.Printf("✅ Destination phone set to %s\n", phone)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println(usage)
		os.Exit(1)
	}
}

func runMigration(command string, cfg *config.Config, appLog *logger.Logger) error {
	m, err := migrations.New(cfg.DatabaseURL, appLog)
	if err != nil {
		return err
	}
	defer m.Close()

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			return err
		}
		fmt.Println("✅ Migrations applied")
	case "down":
		if err := m.Down(); err != nil {
			return err
		}
		fmt.Println("✅ Rolled back one migration")
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Printf("  schema version: %d (dirty: %t)\n", version, dirty)
	return nil
}

// openContainer wires the services without touching the schema
func openContainer(ctx context.Context, cfg *config.Config, appLog *logger.Logger) *container.Container {
	cfg.AutoMigrate = false
	c, err := container.New(ctx, cfg, appLog)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	return c
}
