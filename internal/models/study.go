package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Study records a study definition snapshot so the store remains
// self-describing after the YAML on disk changes.
type Study struct {
	Name       string            `gorm:"type:text;primaryKey" json:"name"`
	Definition datatypes.JSON    `gorm:"type:json" json:"definition"`
	Settings   datatypes.JSONMap `gorm:"type:json" json:"settings,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null" json:"updated_at"`
}

// Template is a compressed copy of an input template shared by every
// work unit of a stage.
type Template struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Study     string    `gorm:"type:text;index;not null" json:"study"`
	Stage     string    `gorm:"type:text;not null" json:"stage"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Content   []byte    `json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
