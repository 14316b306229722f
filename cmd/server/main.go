package main

import (
	"github.com/DoyleJ11/live-leaderboard/internal/app"
)

func main() {
	// Config, store, hub and router are all built by the fx graph; Run
	// blocks until SIGINT/SIGTERM and exits non-zero if startup fails.
	app.New().Run()
}
