package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/engine-gc/pkg/config"
	apperrors "github.com/engine-gc/pkg/errors"
	"github.com/engine-gc/pkg/telemetry"
)

// DBType names a database in config.DatabaseConfig.Type.
type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypePostgres DBType = "postgres"
	DBTypeMySQL    DBType = "mysql"
)

const defaultSQLitePath = "gcsim.db"

// dialects maps every accepted type name, aliases included, to a
// dialector constructor.
var dialects = map[DBType]func(cfg config.DatabaseConfig) gorm.Dialector{
	"":             sqliteDialector,
	"sqlite3":      sqliteDialector,
	DBTypeSQLite:   sqliteDialector,
	"postgresql":   postgresDialector,
	DBTypePostgres: postgresDialector,
	DBTypeMySQL:    mysqlDialector,
}

func sqliteDialector(cfg config.DatabaseConfig) gorm.Dialector {
	if cfg.Path == "" {
		return sqlite.Open(defaultSQLitePath)
	}
	return sqlite.Open(cfg.Path)
}

func postgresDialector(cfg config.DatabaseConfig) gorm.Dialector {
	return postgres.Open(fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database))
}

func mysqlDialector(cfg config.DatabaseConfig) gorm.Dialector {
	return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database))
}

// Dialector returns the GORM dialector for the configured database.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	open, ok := dialects[DBType(cfg.Type)]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeConfigError, "unsupported database type: %s", cfg.Type)
	}
	return open(cfg), nil
}

// NewGormDB opens the configured database and migrates the schema.
// SQLite gets a single connection: writers serialize anyway, and every
// :memory: connection would see its own database.
func NewGormDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	conns := cfg.MaxConns
	switch {
	case dialector.Name() == "sqlite":
		conns = 1
	case conns <= 0:
		conns = 10
	}
	return OpenDialector(dialector, conns)
}

// OpenDialector connects through dialector, checks the connection and
// migrates. maxConns <= 0 leaves the pool unbounded.
func OpenDialector(dialector gorm.Dialector, maxConns int) (db *gorm.DB, err error) {
	db, err = gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, dbError("open database", err)
	}
	if telemetry.Enabled() {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeConfigError, "enable database tracing", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError("access connection pool", err)
	}
	defer func() {
		if err != nil {
			sqlDB.Close()
		}
	}()
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns((maxConns + 1) / 2)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, dbError("ping database", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the run tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&SimRun{}, &SimCycle{}); err != nil {
		return dbError("migrate schema", err)
	}
	return nil
}

// Repositories bundles the repositories sharing one connection pool.
type Repositories struct {
	Runs RunRepository
	db   *gorm.DB
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{Runs: NewGormRunRepository(db), db: db}
}

// Open connects to the configured database and builds the repositories.
func Open(cfg config.DatabaseConfig) (*Repositories, error) {
	db, err := NewGormDB(cfg)
	if err != nil {
		return nil, err
	}
	return NewRepositories(db), nil
}

// Close releases the connection pool. It is a no-op without one.
func (r *Repositories) Close() error {
	if r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck pings the database.
func (r *Repositories) HealthCheck(ctx context.Context) error {
	if r.db == nil {
		return apperrors.New(apperrors.CodeDatabaseError, "no database connection")
	}
	sqlDB, err := r.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return dbError("health check", err)
	}
	return nil
}
