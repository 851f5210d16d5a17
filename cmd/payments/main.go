package main

import (
	"log"

	"github.com/redletterlabs/vouchsafe/internal/resource"
)

func main() {
	cfg := resource.LoadConfig("payments", 8082)

	application, err := resource.New(cfg, resource.Payments())
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
