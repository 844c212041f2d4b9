// Package migration creates the billing schema on startup.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accountdomain "github.com/smallbiznis/warebill/internal/account/domain"
	auditdomain "github.com/smallbiznis/warebill/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/warebill/internal/catalog/domain"
	invoicedomain "github.com/smallbiznis/warebill/internal/invoice/domain"
	sharetokendomain "github.com/smallbiznis/warebill/internal/sharetoken/domain"
	usagedomain "github.com/smallbiznis/warebill/internal/usage/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table owned by the billing engine.
func Models() []any {
	return []any{
		&accountdomain.ParentAccount{},
		&accountdomain.Warehouse{},
		&accountdomain.ClientAccount{},
		&catalogdomain.ServiceCatalogEntry{},
		&catalogdomain.ServiceOverride{},
		&usagedomain.LedgerEntry{},
		&invoicedomain.Invoice{},
		&invoicedomain.LineItem{},
		&sharetokendomain.ShareToken{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate builds the schema from the gorm models for sqlite and mysql,
// then adds the invoice period index that the tags cannot express.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return ensurePeriodIndex(db)
}

func ensurePeriodIndex(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "sqlite":
		return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_period
			ON invoices (parent_account_id, client_account_id, warehouse_id, period_start, period_end)
			WHERE status <> 'cancelled'`).Error
	case "mysql":
		if db.Migrator().HasIndex(&invoicedomain.Invoice{}, "ux_invoices_period") {
			return nil
		}
		// MySQL has no partial indexes; NULL keys never collide, so cancelled rows drop out.
		return db.Exec(`CREATE UNIQUE INDEX ux_invoices_period
			ON invoices (parent_account_id, client_account_id, warehouse_id, period_start, period_end,
			((CASE WHEN status <> 'cancelled' THEN 1 END)))`).Error
	case "postgres":
		return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_invoices_period
			ON invoices (parent_account_id, client_account_id, warehouse_id, period_start, period_end)
			WHERE status <> 'cancelled'`).Error
	default:
		return fmt.Errorf("no period index for dialect %s", db.Dialector.Name())
	}
}
