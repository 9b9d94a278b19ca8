package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"sim-chatter/internal/app"
	"sim-chatter/internal/config"
	"sim-chatter/internal/logging"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	// stdout belongs to the MCP transport; logging.Init only writes to stderr
	// and the log file.
	logger, err := logging.Init(cfg)
	if err != nil {
		logger.Warn("file logging disabled", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	tools := &ChatToolServer{
		repliers:      make(map[string]replier, len(a.Orchestrators)),
		defaultVendor: a.DefaultVendor,
		personas:      a.Personas,
		logger:        logger,
	}
	for name, o := range a.Orchestrators {
		tools.repliers[name] = o
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "sim-chatter-mcp",
		Version: "1.0.0",
	}, nil)
	tools.register(server)

	logger.Info("mcp server starting on stdio", "tools", 3)
	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil && ctx.Err() == nil {
		logger.Error("mcp server failed", "error", err)
		os.Exit(1)
	}
}
