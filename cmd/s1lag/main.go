package main

import (
	"errors"
	"os"

	cmd "github.com/MrSnakeDoc/s1lag/internal"
	"github.com/MrSnakeDoc/s1lag/internal/logger"
	"github.com/MrSnakeDoc/s1lag/internal/middleware"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, middleware.ErrLogged) {
			logger.LogError("%v", err)
		}
		os.Exit(1)
	}
}
