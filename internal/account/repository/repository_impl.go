package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/warebill/internal/account/domain"
	"github.com/smallbiznis/warebill/internal/apperror"
	"github.com/smallbiznis/warebill/pkg/repository"
	"gorm.io/gorm"
)

type directory struct {
	parents    repository.Repository[domain.ParentAccount]
	clients    repository.Repository[domain.ClientAccount]
	warehouses repository.Repository[domain.Warehouse]
}

func NewDirectory(db *gorm.DB) domain.Directory {
	return &directory{
		parents:    repository.ProvideStore[domain.ParentAccount](db),
		clients:    repository.ProvideStore[domain.ClientAccount](db),
		warehouses: repository.ProvideStore[domain.Warehouse](db),
	}
}

func (d *directory) GetParent(ctx context.Context, id snowflake.ID) (*domain.ParentAccount, error) {
	if id == 0 {
		return nil, apperror.ErrNotFound
	}
	return notFoundIfNil(d.parents.FindOne(ctx, &domain.ParentAccount{ID: id}))
}

func (d *directory) GetClient(ctx context.Context, id snowflake.ID) (*domain.ClientAccount, error) {
	if id == 0 {
		return nil, apperror.ErrNotFound
	}
	return notFoundIfNil(d.clients.FindOne(ctx, &domain.ClientAccount{ID: id}))
}

func (d *directory) GetWarehouse(ctx context.Context, id snowflake.ID) (*domain.Warehouse, error) {
	if id == 0 {
		return nil, apperror.ErrNotFound
	}
	return notFoundIfNil(d.warehouses.FindOne(ctx, &domain.Warehouse{ID: id}))
}

// ValidateScope reports a missing row the same way as a foreign one.
func (d *directory) ValidateScope(ctx context.Context, parentID, clientID, warehouseID snowflake.ID) error {
	if parentID == 0 || clientID == 0 {
		return apperror.ErrUnauthorizedTenant
	}
	client, err := d.clients.FindOne(ctx, &domain.ClientAccount{ID: clientID})
	if err != nil {
		return err
	}
	if client == nil || client.ParentAccountID != parentID {
		return apperror.ErrUnauthorizedTenant
	}
	if warehouseID == 0 {
		return nil
	}
	wh, err := d.warehouses.FindOne(ctx, &domain.Warehouse{ID: warehouseID})
	if err != nil {
		return err
	}
	if wh == nil || wh.ParentAccountID != parentID {
		return apperror.ErrUnauthorizedTenant
	}
	return nil
}

func notFoundIfNil[T any](v *T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, apperror.ErrNotFound
	}
	return v, nil
}
