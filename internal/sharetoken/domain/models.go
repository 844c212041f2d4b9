// Package domain contains share links that expose one invoice without a login.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ShareToken stores only the sha256 of the bearer string.
type ShareToken struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	InvoiceID       snowflake.ID `gorm:"not null;index"`
	ParentAccountID snowflake.ID `gorm:"not null;index"`
	TokenHash       string       `gorm:"size:191;not null;uniqueIndex"`
	ExpiresAt       time.Time    `gorm:"not null"`
	RevokedAt       *time.Time
	CreatedBy       string    `gorm:"type:text;not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (ShareToken) TableName() string { return "invoice_share_tokens" }
