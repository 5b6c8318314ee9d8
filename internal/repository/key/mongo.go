package key

import (
	"context"

	"privly_chat/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type (
	KeyRepo struct {
		collection *mongo.Collection
	}
)

func NewKeyRepo(db *mongo.Database) *KeyRepo {
	return &KeyRepo{
		collection: db.Collection("box_keys"),
	}
}

// EnsureIndexes makes identity unique so concurrent upserts cannot create
// two records for one identity.
func (r *KeyRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "identity", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *KeyRepo) Get(ctx context.Context, identity string) (*model.KeyRecord, error) {
	filter := bson.M{
		"identity": identity,
	}

	var rec model.KeyRecord
	err := r.collection.FindOne(ctx, filter).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &rec, nil
}

func (r *KeyRepo) Put(ctx context.Context, rec *model.KeyRecord) error {
	filter := bson.M{
		"identity": rec.Identity,
	}

	_, err := r.collection.ReplaceOne(ctx, filter, rec, options.Replace().SetUpsert(true))
	return err
}
