package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/epic1st/rtx/backend/config"
	"github.com/epic1st/rtx/backend/database"
)

func main() {
	upCmd := flag.Bool("up", false, "Run all pending migrations")
	downCmd := flag.Bool("down", false, "Rollback last migration")
	statusCmd := flag.Bool("status", false, "Show migration status")
	initCmd := flag.Bool("init", false, "Initialize migrations table")
	dryRun := flag.Bool("dry-run", false, "Print what would run without executing it")
	verbose := flag.Bool("verbose", false, "Verbose logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password,
		cfg.Database.Name, cfg.Database.SSLMode,
	)

	db, err := database.Connect(connStr)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("[migrate] connected to %s@%s:%s/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	migrator := database.NewMigrator(db, database.WithDryRun(*dryRun), database.WithVerbose(*verbose))

	switch {
	case *initCmd:
		if err := migrator.Initialize(); err != nil {
			log.Fatalf("failed to initialize: %v", err)
		}
	case *upCmd:
		if err := migrator.Initialize(); err != nil {
			log.Fatalf("failed to initialize: %v", err)
		}
		if err := migrator.Up(); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	case *downCmd:
		if err := migrator.Down(); err != nil {
			log.Fatalf("rollback failed: %v", err)
		}
	case *statusCmd:
		if err := migrator.Initialize(); err != nil {
			log.Fatalf("failed to initialize: %v", err)
		}
		if err := migrator.Status(); err != nil {
			log.Fatalf("failed to get status: %v", err)
		}
	default:
		fmt.Println("simtrade migration tool")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  migrate -init      Initialize migrations table")
		fmt.Println("  migrate -up        Run all pending migrations")
		fmt.Println("  migrate -down      Rollback last migration")
		fmt.Println("  migrate -status    Show migration status")
		os.Exit(1)
	}
}
