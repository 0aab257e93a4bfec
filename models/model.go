package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RegisteredModel is one row of the model registry. Rows are immutable once
// saved; retraining appends a new version instead of overwriting.
type RegisteredModel struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"column:name;index:idx_model_name_version" json:"name"`
	Version        int       `gorm:"column:version;index:idx_model_name_version" json:"version"`
	Params         []byte    `gorm:"column:params" json:"-"`
	FeatureColumns string    `gorm:"column:feature_columns" json:"feature_columns"`
	TrainStart     time.Time `gorm:"column:train_start" json:"train_start"`
	TrainEnd       time.Time `gorm:"column:train_end" json:"train_end"`
	MSE            float64   `gorm:"column:mse" json:"mse"`
	R2             float64   `gorm:"column:r2" json:"r2"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (RegisteredModel) TableName() string { return "model_registry" }

// SetColumns records the exact feature column order the model was trained on.
func (m *RegisteredModel) SetColumns(columns []string) error {
	data, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("encode feature columns: %w", err)
	}
	m.FeatureColumns = string(data)
	return nil
}

// Columns returns the feature column order the model was trained on.
func (m *RegisteredModel) Columns() ([]string, error) {
	var columns []string
	if err := json.Unmarshal([]byte(m.FeatureColumns), &columns); err != nil {
		return nil, fmt.Errorf("decode feature columns: %w", err)
	}
	return columns, nil
}

// VersionTag is the identifier stamped onto prediction records.
func (m *RegisteredModel) VersionTag() string {
	return fmt.Sprintf("%s-v%d", m.Name, m.Version)
}
