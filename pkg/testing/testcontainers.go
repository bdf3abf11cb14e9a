package testing

import (
	"context"
	"fmt"

	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"

	pkgmongo "github.com/mes-platform/production-service/pkg/mongodb"
)

const mongoImage = "mongo:6"

// MongoDB is a disposable single-node replica set. Transactions need the
// replica set, so repository tests cannot run against a standalone server.
type MongoDB struct {
	container *tcmongo.MongoDBContainer
	config    *pkgmongo.Config
}

// StartMongoDB starts the container and prepares a client config for database
func StartMongoDB(ctx context.Context, database string) (*MongoDB, error) {
	container, err := tcmongo.Run(ctx, mongoImage, tcmongo.WithReplicaSet("rs0"))
	if err != nil {
		return nil, fmt.Errorf("failed to start mongodb container: %w", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	config := pkgmongo.DefaultConfig()
	config.URI = uri
	config.Database = database
	config.Direct = true

	return &MongoDB{container: container, config: config}, nil
}

// Connect returns a service client bound to the test database
func (m *MongoDB) Connect(ctx context.Context) (*pkgmongo.Client, error) {
	return pkgmongo.NewClient(ctx, m.config)
}

// Terminate stops the container; safe on a nil receiver
func (m *MongoDB) Terminate(ctx context.Context) error {
	if m == nil || m.container == nil {
		return nil
	}
	return m.container.Terminate(ctx)
}
