package main

import (
	"context"
	"log"

	"github.com/Apurer/tableside/internal/app/api"
)

func main() {
	if err := api.RunWorker(context.Background()); err != nil {
		log.Fatalf("tableside worker: %v", err)
	}
}
