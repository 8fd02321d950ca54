// Package models contains the database model definitions.
package models

import (
	"time"
)

// Fixture kinds stored in the patch.
const (
	KindPowerSwitch = "power"
	KindDimmable    = "dimmable"
	KindPinSpot     = "pinspot"
)

// PatchFixture is one fixture in the patch: a name bound to a DMX slot.
// Table: patch_fixtures
type PatchFixture struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;uniqueIndex"`
	Kind      string    `gorm:"column:kind"`
	Address   int       `gorm:"column:address;index"`
	Length    int       `gorm:"column:length"`
	Indicator bool      `gorm:"column:indicator;default:false"`
	Notes     *string   `gorm:"column:notes"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PatchFixture) TableName() string { return "patch_fixtures" }

// Setting represents an operator setting.
// Table: settings
type Setting struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Key       string    `gorm:"column:key;uniqueIndex"`
	Value     string    `gorm:"column:value"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string { return "settings" }

// Setting keys.
const (
	SettingIdleShutdown = "idle_shutdown"
)
