package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

func (m *Mongo) LoadRateConfig(ctx context.Context) (models.ExchangeRateConfig, error) {
	var cfg models.ExchangeRateConfig
	err := m.db.Collection(colRateConfig).FindOne(ctx, bson.M{"_id": models.ExchangeRateConfigID}).Decode(&cfg)
	return cfg, translate(err)
}

// SaveQuotedRate records a fetched quote. The manual pin is left as it is.
func (m *Mongo) SaveQuotedRate(ctx context.Context, rate float64, source string, at time.Time) error {
	_, err := m.db.Collection(colRateConfig).UpdateOne(ctx,
		bson.M{"_id": models.ExchangeRateConfigID},
		bson.M{
			"$set": bson.M{
				"lastQuotedRate": rate,
				"lastSource":     source,
				"lastUpdated":    at,
			},
			"$setOnInsert": bson.M{
				"manualRate":    nil,
				"useManualRate": false,
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// SaveManualRate stores the admin override. A nil rate keeps the stored one.
func (m *Mongo) SaveManualRate(ctx context.Context, rate *float64, use bool) error {
	set := bson.M{"useManualRate": use}
	if rate != nil {
		set["manualRate"] = *rate
	}
	update := bson.M{"$set": set}
	if rate == nil {
		update["$setOnInsert"] = bson.M{"manualRate": nil}
	}
	_, err := m.db.Collection(colRateConfig).UpdateOne(ctx,
		bson.M{"_id": models.ExchangeRateConfigID},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}
