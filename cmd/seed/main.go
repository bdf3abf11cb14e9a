// Command seed loads the process catalog YAML into the machines collection.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/mes-platform/production-service/internal/config"
	"github.com/mes-platform/production-service/internal/infrastructure/catalog"
	mongoRepo "github.com/mes-platform/production-service/internal/infrastructure/mongodb"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/mongodb"
)

const serviceName = "production-seed"

func main() {
	logger := logging.New(logging.DefaultConfig(serviceName))

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	path := flag.String("file", cfg.CatalogFile, "catalog YAML file")
	flag.Parse()

	machines, err := catalog.LoadFile(*path)
	if err != nil {
		logger.WithError(err).Error("Failed to load catalog", "path", *path)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := mongodb.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer client.Close(context.Background())

	repo := mongoRepo.NewCatalogRepository(client.Database(), nil, logger)
	written, err := repo.UpsertMachines(ctx, machines)
	if err != nil {
		logger.WithError(err).Error("Failed to seed catalog", "written", written)
		os.Exit(1)
	}

	logger.Info("Catalog seeded", "machines", written, "database", cfg.MongoDB.Database)
}
