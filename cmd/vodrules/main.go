package main

import (
	"log"

	"github.com/MrSnakeDoc/vodrules/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ vodrules run failed: %v", err)
	}
}
