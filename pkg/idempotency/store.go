package idempotency

import (
	"context"
	"fmt"
	"time"

	pkgmongo "github.com/mes-platform/production-service/pkg/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists idempotency records. Acquire must be atomic across replicas.
type Store interface {
	// Acquire takes the lock on rec's key for rec.Token. It returns the
	// stored record and whether the caller now owns it: either the key is
	// new, or an unfinished record for the same request was released or
	// abandoned.
	Acquire(ctx context.Context, rec *Record) (*Record, bool, error)
	// Complete stores the response and releases the lock
	Complete(ctx context.Context, rec *Record, code int, contentType string, body []byte) error
	// Release drops the lock without a response, so the key can be retried
	Release(ctx context.Context, rec *Record) error
}

const keysCollection = "idempotency_keys"

// MongoStore implements Store on the idempotency_keys collection
type MongoStore struct {
	collection  *mongo.Collection
	lockTimeout time.Duration
}

// NewMongoStore creates the store and its unique and TTL indexes. Locks older
// than lockTimeout may be taken over.
func NewMongoStore(db *mongo.Database, lockTimeout time.Duration) *MongoStore {
	collection := db.Collection(keysCollection)
	_ = pkgmongo.EnsureIndexes(collection,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "service", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		mongo.IndexModel{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	)
	return &MongoStore{collection: collection, lockTimeout: lockTimeout}
}

func (s *MongoStore) Acquire(ctx context.Context, rec *Record) (*Record, bool, error) {
	filter := bson.M{"service": rec.Service, "key": rec.Key}
	update := bson.M{"$setOnInsert": rec}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored Record
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored)
	if pkgmongo.IsDuplicateKey(err) {
		// lost the upsert race, the winner's record is there now
		err = s.collection.FindOne(ctx, filter).Decode(&stored)
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquire idempotency key %s: %w", rec.Key, err)
	}

	switch {
	case stored.Token == rec.Token:
		return &stored, true, nil
	case stored.Completed(), stored.Fingerprint != rec.Fingerprint,
		stored.Locked(pkgmongo.Now(), s.lockTimeout):
		return &stored, false, nil
	}
	return s.takeOver(ctx, &stored, rec.Token)
}

// takeOver moves an unfinished record to token, unless another request
// changed its lock first
func (s *MongoStore) takeOver(ctx context.Context, stored *Record, token string) (*Record, bool, error) {
	filter := bson.M{"_id": stored.ID, "token": stored.Token, "completedAt": bson.M{"$exists": false}}
	now := pkgmongo.Now()

	res, err := s.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"token": token, "lockedAt": now}})
	if err != nil {
		return nil, false, fmt.Errorf("take over idempotency key %s: %w", stored.Key, err)
	}
	if res.MatchedCount == 0 {
		stored.LockedAt = &now
		return stored, false, nil
	}
	stored.Token, stored.LockedAt = token, &now
	return stored, true, nil
}

func (s *MongoStore) Complete(ctx context.Context, rec *Record, code int, contentType string, body []byte) error {
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": rec.ID, "token": rec.Token}, bson.M{
		"$set": bson.M{
			"responseCode":        code,
			"responseBody":        body,
			"responseContentType": contentType,
			"completedAt":         pkgmongo.Now(),
		},
		"$unset": bson.M{"lockedAt": ""},
	})
	if err != nil {
		return fmt.Errorf("complete idempotency key %s: %w", rec.Key, err)
	}
	return nil
}

func (s *MongoStore) Release(ctx context.Context, rec *Record) error {
	_, err := s.collection.UpdateOne(ctx, bson.M{"_id": rec.ID, "token": rec.Token},
		bson.M{"$unset": bson.M{"lockedAt": ""}})
	if err != nil {
		return fmt.Errorf("release idempotency key %s: %w", rec.Key, err)
	}
	return nil
}
