package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tapspot/client"
	"tapspot/logger"
	"tapspot/models"
)

type Config struct {
	URL      string
	Username string
	Password string
	PeerID   int64
	Send     string
	LogLevel string
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.URL, "url", "http://localhost:8080", "TapSpot server URL")
	flag.StringVar(&config.Username, "user", "root", "Username")
	flag.StringVar(&config.Password, "password", "root", "Password")
	flag.Int64Var(&config.PeerID, "peer", 0, "Peer user ID to follow")
	flag.StringVar(&config.Send, "send", "", "Send this message to the peer before following")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level")

	flag.Parse()
	return config
}

func main() {
	config := parseFlags()
	log, err := logger.New(config.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if config.PeerID <= 0 {
		log.Fatal("-peer is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.New(config.URL)
	me, err := api.Login(ctx, config.Username, config.Password)
	if err != nil {
		log.Fatal("login failed", zap.Error(err))
	}
	log.Info("logged in", logger.UserID(me.ID), zap.String("name", me.DisplayName()))

	if config.Send != "" {
		if _, err := api.SendMessage(ctx, config.PeerID, config.Send); err != nil {
			log.Fatal("send failed", zap.Error(err))
		}
	}

	err = api.Follow(ctx, log, config.PeerID, func(m models.Message) {
		who := "peer"
		if m.SenderID == me.ID {
			who = "me"
		}
		fmt.Printf("[%s] #%d %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.ID, who, m.Content)
	})
	if err != nil && ctx.Err() == nil {
		log.Error("follow stopped", zap.Error(err))
	}
}
