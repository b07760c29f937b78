package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/KI7MT/kp-magephem/internal/magephem"
)

// Open returns a clickhouse-go connection pool and verifies it with a ping.
func Open(ctx context.Context, opts Options) (driver.Conn, error) {
	user := opts.User
	if user == "" {
		user = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Host},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: user,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("ClickHouse connection failed: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ClickHouse ping failed: %w", err)
	}
	return conn, nil
}

// MagephemTableDDL returns the CREATE statement for magnetic ephemeris rows.
// L and MLT keep fieldmodel.BadValue; filter with valid = 1.
func MagephemTableDDL(tableFQN string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s
(
    time        DateTime64(3, 'UTC'),
    model       LowCardinality(String),
    l_shell     Float64,
    mlt         Float64,
    valid       UInt8,
    source_file LowCardinality(String)
)
ENGINE = ReplacingMergeTree
ORDER BY (source_file, model, time)`, tableFQN)
}

// MagephemRows converts records into Append arguments in table column
// order: time, model, l_shell, mlt, valid, source_file.
func MagephemRows(model, sourceFile string, records []magephem.Record) [][]any {
	rows := make([][]any, len(records))
	for i, r := range records {
		var valid uint8
		if r.Valid() {
			valid = 1
		}
		rows[i] = []any{r.Time.UTC(), model, r.L, r.MLT, valid, sourceFile}
	}
	return rows
}

// InsertMagephem writes records in one batch and returns the row count.
func InsertMagephem(ctx context.Context, conn driver.Conn, tableFQN, model, sourceFile string, records []magephem.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if err := conn.Exec(ctx, MagephemTableDDL(tableFQN)); err != nil {
		return 0, fmt.Errorf("create %s: %w", tableFQN, err)
	}

	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", tableFQN))
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}
	for _, row := range MagephemRows(model, sourceFile, records) {
		if err := batch.Append(row...); err != nil {
			batch.Abort()
			return 0, fmt.Errorf("append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", tableFQN, err)
	}
	return len(records), nil
}
