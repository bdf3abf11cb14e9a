package mongodb

import (
	"context"
	"fmt"

	"github.com/mes-platform/production-service/internal/domain"
	"github.com/mes-platform/production-service/pkg/logging"
	"github.com/mes-platform/production-service/pkg/metrics"
	pkgmongo "github.com/mes-platform/production-service/pkg/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository serves the process catalog from the machines collection
type CatalogRepository struct {
	collection *pkgmongo.InstrumentedCollection
}

// NewCatalogRepository creates a new CatalogRepository
func NewCatalogRepository(db *mongo.Database, m *metrics.Metrics, logger *logging.Logger) *CatalogRepository {
	collection := db.Collection("machines")

	_ = pkgmongo.EnsureIndexes(collection, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return &CatalogRepository{
		collection: pkgmongo.NewInstrumentedCollection(collection, m, logger),
	}
}

// ListMachines returns every department sorted by name
func (r *CatalogRepository) ListMachines(ctx context.Context) ([]*domain.Machine, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})

	machines := []*domain.Machine{}
	if err := r.collection.FindAll(ctx, bson.M{}, &machines, opts); err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	return machines, nil
}

// FindMachine returns a department by name, nil when absent
func (r *CatalogRepository) FindMachine(ctx context.Context, name string) (*domain.Machine, error) {
	var machine domain.Machine
	err := r.collection.FindOne(ctx, bson.M{"name": name}, &machine)
	if pkgmongo.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find machine: %w", err)
	}
	return &machine, nil
}

// UpsertMachines replaces each department by name and returns how many were written
func (r *CatalogRepository) UpsertMachines(ctx context.Context, machines []*domain.Machine) (int, error) {
	written := 0
	for _, m := range machines {
		_, err := r.collection.ReplaceOne(ctx, bson.M{"name": m.Name}, m, options.Replace().SetUpsert(true))
		if err != nil {
			return written, fmt.Errorf("failed to upsert machine %s: %w", m.Name, err)
		}
		written++
	}
	return written, nil
}
