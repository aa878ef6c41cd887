package dbmongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"classlink/internal/common"
)

const preferencesCollection = "notification_preferences"

type preferenceDoc struct {
	UserID      string                 `bson:"user_id"`
	Preferences common.UserPreferences `bson:"preferences"`
	UpdatedAt   time.Time              `bson:"updated_at"`
}

type preferenceRepository struct {
	collection *mongo.Collection
}

func NewPreferenceRepository(mc *MongoClient) common.PreferenceRepository {
	return &preferenceRepository{
		collection: mc.Database.Collection(preferencesCollection),
	}
}

// Get returns (nil, nil) when the user never saved preferences so the store
// falls back to the process default.
func (r *preferenceRepository) Get(ctx context.Context, userID string) (*common.UserPreferences, error) {
	var doc preferenceDoc
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences for %s: %w", userID, err)
	}
	return &doc.Preferences, nil
}

func (r *preferenceRepository) Upsert(ctx context.Context, userID string, prefs common.UserPreferences) error {
	update := bson.M{"$set": preferenceDoc{
		UserID:      userID,
		Preferences: prefs,
		UpdatedAt:   time.Now(),
	}}
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": userID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert preferences for %s: %w", userID, err)
	}
	return nil
}
