package main

import (
	"context"
	"log"
	"time"

	"github.com/Apurer/tableside/internal/app/api"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	changed, err := api.Reconcile(ctx)
	if err != nil {
		log.Fatalf("failed to reconcile reservations: %v", err)
	}
	log.Printf("reservation reconcile completed, %d tables updated", changed)
}
