package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/pflag"

	"github.com/hmaged/hifz/internal/config"
	"github.com/hmaged/hifz/internal/storage"
	"github.com/hmaged/hifz/internal/web"
)

func main() {
	flags := pflag.NewFlagSet("hifz", pflag.ExitOnError)
	configPath := flags.String("config", "", "Path to a YAML config file")
	flags.String("database", "hifz.db", "Path to the SQLite database file")
	flags.String("listen", ":8080", "HTTP listen address")
	flags.Parse(os.Args[1:])

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := storage.Open(cfg.Database)
	if err != nil {
		log.Error("failed to open database", "path", cfg.Database, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database opened", "path", cfg.Database)

	server := web.NewServer(db, cfg, log, nil)
	log.Info("listening", "addr", cfg.Listen)
	if err := http.ListenAndServe(cfg.Listen, server); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
