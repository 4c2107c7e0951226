package main

import (
	"os"

	"calendar-aggregator/core/logger"
	"calendar-aggregator/core/server"
)

func main() {
	if err := server.Run(); err != nil {
		logger.Error("run server error", "error", err)
		os.Exit(1)
	}
}
