package repos

import (
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func OpenDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// FileDSN builds a DSN for a sqlite file with the pragmas the stores rely on.
func FileDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func runMigrations(db *sqlx.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// stampLayout is fixed width so stored timestamps sort as text.
const stampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func stamp(t time.Time) string { return t.UTC().Format(stampLayout) }

// SeedDemo inserts demo categories, products and users. Safe to run on every start.
func SeedDemo(db *sqlx.DB) error {
	tx := db.MustBegin()
	defer func() { _ = tx.Rollback() }()

	tx.MustExec(`INSERT INTO categories(id,name) VALUES
	  ('retro-consoles','Retro Gaming Consoles'),
	  ('vintage-radios','Vintage Radios')
	  ON CONFLICT(id) DO NOTHING`)

	tx.MustExec(`INSERT INTO products(id,category_id,name,description,price,stock) VALUES
	  ('gbc-001','retro-consoles','Game Boy Color','Handheld console','129.99',9),
	  ('nes-001','retro-consoles','NES Console','Classic 8-bit console','199.00',5),
	  ('snes-001','retro-consoles','Super Nintendo (SNES) Console','Classic 16-bit console','199.00',10),
	  ('radio-001','vintage-radios','Philco 1939','Vintage vacuum tube radio','349.50',2),
	  ('radio-zenith-500','vintage-radios','Zenith Royal 500','Iconic pocket radio','89.00',0)
	  ON CONFLICT(id) DO NOTHING`)

	users := []struct{ id, email, name, role string }{
		{"u-alice", "alice@bazaar.test", "Alice", "USER"},
		{"u-bob", "bob@bazaar.test", "Bob", "USER"},
		{"u-admin", "admin@bazaar.test", "Admin", "ADMIN"},
	}
	now := stamp(time.Now())
	for _, u := range users {
		h, err := bcrypt.GenerateFromPassword([]byte("Passw0rd!"), 12)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO users(id,email,name,password_hash,role,created_at)
			VALUES(?,?,?,?,?,?)
		`, u.id, u.email, u.name, string(h), u.role, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}
