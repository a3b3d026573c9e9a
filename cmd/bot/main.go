package main

import (
	"github.com/sirupsen/logrus"

	"github.com/arvelk/jukebot/internal/bot"
	"github.com/arvelk/jukebot/internal/config"
)

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	discordBot, err := bot.New(cfg, log)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	if err := discordBot.Run(); err != nil {
		log.Fatalf("Error running bot: %v", err)
	}
}
