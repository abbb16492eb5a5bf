package main

import (
	"newsloom/cmd/handlers"
	"newsloom/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
