package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/sessionauth/internal/auth/store/drivers/postgres/migrations"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// ApplyMigrations applies the embedded schema. golang-migrate needs a
// database/sql handle, so a short-lived one is opened from the pool's
// connection string and closed once migrations finish.
func (s *Store) ApplyMigrations() error {
	db, err := sql.Open("pgx", s.pool.Config().ConnString())
	if err != nil {
		return fmt.Errorf("postgres: open migration conn: %w", err)
	}

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		_ = db.Close()
		return err
	}

	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		_ = driver.Close()
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		_ = driver.Close()
		return err
	}
	defer instance.Close()

	err = instance.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
