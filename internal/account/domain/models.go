package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ParentAccount is a warehouse operator that bills its own clients.
type ParentAccount struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Name      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (ParentAccount) TableName() string { return "parent_accounts" }

type Warehouse struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	ParentAccountID snowflake.ID `gorm:"not null;index"`
	Code            string       `gorm:"type:text;not null"`
	Name            string       `gorm:"type:text;not null"`
	CreatedAt       time.Time    `gorm:"not null"`
}

func (Warehouse) TableName() string { return "warehouses" }

// ClientAccount belongs to exactly one parent but may use many of its warehouses.
type ClientAccount struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	ParentAccountID snowflake.ID `gorm:"not null;index"`
	Name            string       `gorm:"type:text;not null"`
	BillingEmail    string       `gorm:"type:text"`
	CreatedAt       time.Time    `gorm:"not null"`
}

func (ClientAccount) TableName() string { return "client_accounts" }
