package main

import (
	"log"

	"laughtrackr/internal/bootstrap"
)

// Serves ./frontend from disk, for iterating on the page without rebuilding.
func main() {
	app, err := bootstrap.New()
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run app: %v", err)
	}
}
