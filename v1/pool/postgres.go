package pool

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Aleph-Alpha/receipt-lookup/v1/credential"
)

// PostgresDialer opens one postgres session per pooled connection, using
// the lease token as the password.
type PostgresDialer struct {
	conn Connection
}

func NewPostgresDialer(cfg Config) *PostgresDialer {
	return &PostgresDialer{conn: cfg.withDefaults().Connection}
}

// connConfig parses the connection settings and sets the lease token as
// the password on the parsed config, so the token never passes through
// DSN quoting.
func (d *PostgresDialer) connConfig(lease credential.Lease) (*pgx.ConnConfig, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s connect_timeout=%d",
		d.conn.Host,
		d.conn.Port,
		d.conn.User,
		d.conn.DbName,
		d.conn.SSLMode,
		int(d.conn.ConnectTimeout.Seconds()))

	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres connection settings: %w", err)
	}
	cfg.Password = lease.Token
	return cfg, nil
}

// Dial establishes a session with GORM on top of pgx. The underlying
// sql.DB is capped at one connection so the pool, not database/sql, owns
// concurrency and lifetime.
func (d *PostgresDialer) Dial(ctx context.Context, lease credential.Lease) (RawConn, error) {
	cfg, err := d.connConfig(lease)
	if err != nil {
		return nil, err
	}

	raw := stdlib.OpenDB(*cfg)
	database, err := gorm.Open(
		postgres.New(postgres.Config{Conn: raw}),
		&gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		})
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get postgres database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return &postgresConn{gdb: database, sqlDB: sqlDB}, nil
}

type postgresConn struct {
	gdb   *gorm.DB
	sqlDB *sql.DB
}

func (c *postgresConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := c.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows, 0)
}

// QueryReadOnly wraps query in an outer LIMIT and a read-only transaction,
// so neither a missing LIMIT nor a data-modifying CTE gets through.
func (c *postgresConn) QueryReadOnly(ctx context.Context, query string, maxRows int, args ...any) ([]Row, error) {
	if maxRows <= 0 {
		return nil, fmt.Errorf("max rows must be positive")
	}

	tx, err := c.sqlDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	inner := strings.TrimSuffix(strings.TrimSpace(query), ";")
	capped := fmt.Sprintf("SELECT * FROM (%s) AS capped_result LIMIT %d", inner, maxRows)

	rows, err := tx.QueryContext(ctx, capped, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows, maxRows)
}

func (c *postgresConn) DB() *gorm.DB {
	return c.gdb
}

func (c *postgresConn) Ping(ctx context.Context) error {
	return c.sqlDB.PingContext(ctx)
}

func (c *postgresConn) Close() error {
	return c.sqlDB.Close()
}

// scanRows reads rows into generic Rows, stopping after limit when limit > 0.
func scanRows(rows *sql.Rows, limit int) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, Row{Columns: cols, Values: values})
	}
	return out, rows.Err()
}
