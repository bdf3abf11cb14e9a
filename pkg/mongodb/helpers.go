package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// IndexTimeout bounds index creation done in repository constructors
const IndexTimeout = 10 * time.Second

// Now returns the current time in UTC truncated to the millisecond BSON stores
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// BuildUpdateWithTimestamp wraps set in a $set that also stamps updatedAt
func BuildUpdateWithTimestamp(set bson.M) bson.M {
	set["updatedAt"] = Now()
	return bson.M{"$set": set}
}

// SortField is one key of a compound sort
type SortField struct {
	Field      string
	Descending bool
}

// SortMultiple builds an ordered sort document from fields
func SortMultiple(fields ...SortField) bson.D {
	sort := make(bson.D, 0, len(fields))
	for _, f := range fields {
		dir := 1
		if f.Descending {
			dir = -1
		}
		sort = append(sort, bson.E{Key: f.Field, Value: dir})
	}
	return sort
}

// EnsureIndexes creates indexes on collection. It uses its own context
// bounded by IndexTimeout so constructors can call it without one.
func EnsureIndexes(collection *mongo.Collection, indexes ...mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(context.Background(), IndexTimeout)
	defer cancel()

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
