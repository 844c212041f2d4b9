// Package domain contains the append-only audit trail of billing actions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type AuditLog struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	ParentAccountID snowflake.ID      `gorm:"not null;index:ix_audit_parent_created,priority:1" json:"parent_account_id"`
	ActorSubject    string            `gorm:"type:text;not null" json:"actor_subject"`
	ActorRole       string            `gorm:"type:text;not null" json:"actor_role"`
	Action          string            `gorm:"size:191;not null;index" json:"action"`
	TargetType      string            `gorm:"type:text;not null" json:"target_type"`
	TargetID        string            `gorm:"size:191;not null;index" json:"target_id"`
	RequestID       string            `gorm:"type:text" json:"request_id,omitempty"`
	CorrelationID   string            `gorm:"type:text" json:"correlation_id,omitempty"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt       time.Time         `gorm:"not null;index:ix_audit_parent_created,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
