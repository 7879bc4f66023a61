package models

import "time"

// ExchangeRateConfigID is the _id of the single config document.
const ExchangeRateConfigID = "default"

type ExchangeRateConfig struct {
	ID             string     `bson:"_id" json:"id"`
	LastQuotedRate *float64   `bson:"lastQuotedRate" json:"lastQuotedRate"`
	LastSource     string     `bson:"lastSource,omitempty" json:"lastSource,omitempty"`
	ManualRate     *float64   `bson:"manualRate" json:"manualRate"`
	UseManualRate  bool       `bson:"useManualRate" json:"useManualRate"`
	LastUpdated    *time.Time `bson:"lastUpdated" json:"lastUpdated"`
}
