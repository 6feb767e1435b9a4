package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/danthegoodman1/adaptree/gologger"
	// ensure "pgx" driver is loaded
	_ "github.com/jackc/pgx/v4/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	Postgres = "postgres"
	SQLite   = "sqlite3"
)

var (
	//go:embed postgres/*.sql sqlite/*.sql
	migrations embed.FS

	ErrMigrationsNotRun = fmt.Errorf("not all migrations applied")

	logger = gologger.NewLogger()
)

func source(dialect string) (*migrate.EmbedFileSystemMigrationSource, error) {
	var root string
	switch dialect {
	case Postgres:
		root = "postgres"
	case SQLite:
		root = "sqlite"
	default:
		return nil, fmt.Errorf("unknown migration dialect %q", dialect)
	}
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations,
		Root:       root,
	}, nil
}

func migrationSet() migrate.MigrationSet {
	return migrate.MigrationSet{
		TableName: "migrations",
	}
}

// RunMigrations connects to CRDB and applies every pending migration.
func RunMigrations(crdbDsn string) (int, error) {
	db, err := sql.Open("pgx", crdbDsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return Exec(db, Postgres)
}

// Exec applies every pending migration of dialect to db.
func Exec(db *sql.DB, dialect string) (int, error) {
	src, err := source(dialect)
	if err != nil {
		return 0, err
	}
	ms := migrationSet()
	return ms.Exec(db, dialect, src, migrate.Up)
}

func CheckMigrations(crdbDsn string) error {
	db, err := sql.Open("pgx", crdbDsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return Check(db, Postgres)
}

// Check returns ErrMigrationsNotRun when db is missing migrations.
func Check(db *sql.DB, dialect string) error {
	src, err := source(dialect)
	if err != nil {
		return err
	}
	ms := migrationSet()
	migration, _, err := ms.PlanMigration(db, dialect, src, migrate.Up, 0)
	if err != nil {
		return err
	}
	if len(migration) > 0 {
		for _, mig := range migration {
			logger.Warn().Str("migrationID", mig.Id).Msg("missing migration")
		}
		return ErrMigrationsNotRun
	}
	return nil
}
