package main

import (
	"log"
	"os"

	"github.com/aussiebroadwan/backoffice/internal/gateway/app"
)

func main() {
	cfg := app.LoadConfig()
	if err := cfg.ParseFlags(os.Args[1:]); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize gateway: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("gateway error: %v", err)
	}
}
