package main

import (
	"context"
	"log"

	"kol-referral-bot/internal/bot"
	"kol-referral-bot/internal/config"
	"kol-referral-bot/internal/database"
	"kol-referral-bot/internal/logger"
	"kol-referral-bot/internal/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Could not build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	db, err := database.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}

	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Could not connect to redis: %v", err)
	}

	referrals := store.NewReferralStore(db)
	links := store.NewLinkStore(db, rdb, zl)

	b, err := bot.NewBot(cfg, referrals, links, zl)
	if err != nil {
		log.Fatalf("Could not create bot: %v", err)
	}

	log.Println("Service started successfully")

	if err := b.Start(context.Background()); err != nil {
		log.Fatalf("Bot stopped: %v", err)
	}
}
