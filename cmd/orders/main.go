package main

import (
	"log"

	"github.com/redletterlabs/vouchsafe/internal/resource"
)

func main() {
	cfg := resource.LoadConfig("orders", 8081)

	application, err := resource.New(cfg, resource.Orders())
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
