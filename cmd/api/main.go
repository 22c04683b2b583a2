package main

import (
	"os"

	"go.uber.org/fx"

	"servicecenter/internal/app"
	"servicecenter/internal/server"
)

func main() {
	fx.New(
		app.Core(configPath()),
		server.Module,
	).Run()
}

func configPath() string {
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return p
	}
	return "config.toml"
}
