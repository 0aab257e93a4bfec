package models

import "time"

// PredictionRecord is one predicted hourly flow for a directed border pair.
// Regenerating predictions for the same (pair, TS) overwrites the earlier row.
type PredictionRecord struct {
	TS           time.Time `json:"ts"`
	CountryFrom  string    `json:"country_from"`
	CountryTo    string    `json:"country_to"`
	Direction    string    `json:"direction"`
	EnergySent   float64   `json:"energy_sent"`
	ModelVersion string    `json:"model_version"`
}
