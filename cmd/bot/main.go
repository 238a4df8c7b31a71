// cmd/bot/main.go
package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"discord-scamguard/internal/archive"
	"discord-scamguard/internal/bot"
	"discord-scamguard/internal/config"
	"discord-scamguard/internal/dataset"
	"discord-scamguard/internal/detector"
	"discord-scamguard/internal/stats"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	// Durable stores
	store, err := dataset.New(filepath.Join(cfg.DataDir, "flagged_messages_dataset.csv"), logger)
	if err != nil {
		logger.Fatal("failed to open dataset store", zap.Error(err))
	}
	tracker := stats.New(filepath.Join(cfg.DataDir, "bot_stats.json"), cfg.Location(), logger)

	// Detector chain: cheap pattern rules first, the ML stage when a key
	// is configured.
	stages := []detector.Detector{detector.NewPatternDetector(cfg.ScamThreshold)}
	if cfg.OpenAIKey != "" {
		stages = append(stages, detector.NewOpenAIDetector(cfg.OpenAIKey, cfg.OpenAIModel, cfg.ScamThreshold))
	} else {
		logger.Info("OPENAI_API_KEY not set, running with pattern detection only")
	}

	// Optional Postgres archive
	var arc bot.Archiver
	if cfg.PostgresDSN != "" {
		a, err := archive.Open(cfg.PostgresDSN)
		if err != nil {
			logger.Error("archive disabled", zap.Error(err))
		} else {
			arc = a
			logger.Info("flagged-message archive enabled")
		}
	}

	handler := bot.NewHandler(cfg, detector.NewChain(stages...), store, tracker, arc, logger)

	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Fatal("failed to create Discord session", zap.Error(err))
	}

	session.AddHandler(handler.OnMessageCreate)
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentMessageContent

	handler.SetSession(session)

	if err := session.Open(); err != nil {
		logger.Fatal("failed to open Discord connection", zap.Error(err))
	}
	defer session.Close()

	logger.Info("scam moderation bot is running",
		zap.String("prefix", cfg.CommandPrefix),
		zap.Strings("exempt_roles", cfg.ExemptRoles))

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
}
