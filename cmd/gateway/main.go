package main

import (
	"log"

	"github.com/redletterlabs/vouchsafe/internal/gateway"
)

func main() {
	cfg := gateway.LoadConfig()

	application, err := gateway.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
