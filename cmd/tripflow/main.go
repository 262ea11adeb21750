package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	tripflow "github.com/tripflow-ai/tripflow"
)

func main() {
	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	servePostgres := serveCmd.String("postgres", "", "PostgreSQL connection URI (falls back to POSTGRES_URI)")
	servePort := serveCmd.Int("port", 0, "Port to listen on (overrides PORT)")
	serveInit := serveCmd.Bool("init", false, "Initialize the database schema before serving")

	sweepCmd := flag.NewFlagSet("sweep", flag.ExitOnError)
	sweepPostgres := sweepCmd.String("postgres", "", "PostgreSQL connection URI (falls back to POSTGRES_URI)")

	if len(os.Args) < 2 {
		fmt.Println("Expected 'serve' or 'sweep' subcommand")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	switch os.Args[1] {
	case "serve":
		serveCmd.Parse(os.Args[2:])
		runServe(logger, *servePostgres, *servePort, *serveInit)
	case "sweep":
		sweepCmd.Parse(os.Args[2:])
		runSweep(logger, *sweepPostgres)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		fmt.Println("Expected 'serve' or 'sweep' subcommand")
		os.Exit(1)
	}
}

func runServe(logger *slog.Logger, postgresURI string, port int, initDB bool) {
	ctx := context.Background()

	cfg, err := tripflow.LoadConfig()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if postgresURI == "" {
		postgresURI = cfg.PostgresURI
	}
	if port == 0 {
		port = cfg.Port
	}

	var storage tripflow.Storage
	var memories tripflow.MemoryStore

	if postgresURI != "" {
		pg, err := tripflow.NewPostgresStorage(postgresURI)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		if initDB {
			logger.Info("initializing database schema")
			if err := pg.InitDB(ctx); err != nil {
				logger.Error("failed to initialize database", "error", err)
				os.Exit(1)
			}
		}
		storage = pg
		memories = pg
	} else {
		logger.Warn("no postgres URI configured, using in-memory stores")
		inmem := tripflow.NewInMemoryBackend()
		storage = inmem
		memories = inmem.Memories
	}

	llm := tripflow.NewOpenAILLM(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model)
	assistant := tripflow.NewAssistant(llm, cfg.Model, storage, memories)
	assistant.SetLogger(logger)

	server := tripflow.NewServer(assistant, storage, memories)
	server.SetLogger(logger)

	if cfg.WhatsAppEnabled() {
		agentID, err := uuid.Parse(cfg.WhatsAppAgentID)
		if err != nil {
			logger.Error("WHATSAPP_AGENT_ID must be a valid UUID when WhatsApp is enabled", "error", err)
			os.Exit(1)
		}
		client := tripflow.NewWhatsAppClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneID, cfg.WhatsAppVerifyToken)
		server.EnableWhatsApp(client, agentID)
		logger.Info("whatsapp webhook enabled", "agentID", agentID)
	}

	addr := fmt.Sprintf(":%d", port)
	logger.Info("listening", "addr", addr, "model", cfg.Model)
	if err := http.ListenAndServe(addr, server); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func runSweep(logger *slog.Logger, postgresURI string) {
	ctx := context.Background()

	if postgresURI == "" {
		postgresURI = os.Getenv("POSTGRES_URI")
	}
	if postgresURI == "" {
		fmt.Println("Error: --postgres flag or POSTGRES_URI is required")
		os.Exit(1)
	}

	pg, err := tripflow.NewPostgresStorage(postgresURI)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	purged, err := pg.PurgeExpired(ctx)
	if err != nil {
		logger.Error("sweep failed", "error", err)
		os.Exit(1)
	}
	logger.Info("sweep complete", "purged", purged)
}
