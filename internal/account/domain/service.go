package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Directory answers tenancy questions for the billing components.
type Directory interface {
	GetParent(ctx context.Context, id snowflake.ID) (*ParentAccount, error)
	GetClient(ctx context.Context, id snowflake.ID) (*ClientAccount, error)
	GetWarehouse(ctx context.Context, id snowflake.ID) (*Warehouse, error)
	// ValidateScope fails with UNAUTHORIZED_TENANT_ACCESS unless the client, and the
	// warehouse when non-zero, belong to parentID.
	ValidateScope(ctx context.Context, parentID, clientID, warehouseID snowflake.ID) error
}
