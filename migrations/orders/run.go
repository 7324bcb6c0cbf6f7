package main

import (
	"context"
	"embed"

	"github.com/ghuser/orderflow/pkg/config"
	"github.com/ghuser/orderflow/pkg/migrator"
)

//go:embed *.sql
var MigrationsFS embed.FS

func main() {
	cfg, err := config.Load("orders-migrate")
	if err != nil {
		panic(err)
	}
	if err := migrator.RunMigrations(context.Background(), cfg.DatabaseURL, MigrationsFS); err != nil {
		panic(err)
	}
}
