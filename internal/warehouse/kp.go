// Package warehouse loads Kp series and magnetic ephemerides into ClickHouse.
//
// Kp rows use the native protocol (ch-go) with columnar batches. Magephem
// rows go through clickhouse-go/v2 PrepareBatch.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/ch-go"
	"github.com/ClickHouse/ch-go/proto"

	"github.com/KI7MT/kp-magephem/internal/kp"
)

// BatchLimit is the number of rows buffered before a flush.
const BatchLimit = 50000

// Options address a ClickHouse server.
type Options struct {
	Host     string
	Database string
	User     string
	Password string
}

// Executor runs a native-protocol query. *ch.Client satisfies it.
type Executor interface {
	Do(ctx context.Context, q ch.Query) error
}

// Dial opens a native-protocol connection with LZ4 compression.
func Dial(ctx context.Context, opts Options) (*ch.Client, error) {
	conn, err := ch.Dial(ctx, ch.Options{
		Address:     opts.Host,
		Database:    opts.Database,
		User:        opts.User,
		Password:    opts.Password,
		Compression: ch.CompressionLZ4,
	})
	if err != nil {
		return nil, fmt.Errorf("ClickHouse connection failed: %w", err)
	}
	return conn, nil
}

// KpTableDDL returns the CREATE statement for the Kp table. Re-ingesting a
// year replaces its rows on merge.
func KpTableDDL(tableFQN string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s
(
    date        Date32,
    time        DateTime('UTC'),
    kp_index    Float32,
    kp          Int16,
    missing     UInt8,
    source_file LowCardinality(String),
    updated_at  DateTime DEFAULT now()
)
ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (date, time)`, tableFQN)
}

// KpBatch holds columnar Kp rows for a native insert.
// Matches schema: (date, time, kp_index, kp, missing, source_file)
type KpBatch struct {
	Date       *proto.ColDate32
	Time       *proto.ColDateTime
	KpIndex    *proto.ColFloat32
	Kp         *proto.ColInt16
	Missing    *proto.ColUInt8
	SourceFile *proto.ColStr
}

func NewKpBatch() *KpBatch {
	return &KpBatch{
		Date:       new(proto.ColDate32),
		Time:       new(proto.ColDateTime),
		KpIndex:    new(proto.ColFloat32),
		Kp:         new(proto.ColInt16),
		Missing:    new(proto.ColUInt8),
		SourceFile: new(proto.ColStr),
	}
}

func (b *KpBatch) Reset() {
	b.Date.Reset()
	b.Time.Reset()
	b.KpIndex.Reset()
	b.Kp.Reset()
	b.Missing.Reset()
	b.SourceFile.Reset()
}

func (b *KpBatch) Len() int {
	return b.Date.Rows()
}

func (b *KpBatch) Input() proto.Input {
	return proto.Input{
		{Name: "date", Data: b.Date},
		{Name: "time", Data: b.Time},
		{Name: "kp_index", Data: b.KpIndex},
		{Name: "kp", Data: b.Kp},
		{Name: "missing", Data: b.Missing},
		{Name: "source_file", Data: b.SourceFile},
	}
}

// AddSample appends one row. Missing samples keep their sentinel in kp and
// store 0 in kp_index.
func (b *KpBatch) AddSample(s kp.Sample, sourceFile string) {
	ts := s.Time.UTC()
	b.Date.Append(time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC))
	b.Time.Append(ts)
	if s.Missing() {
		b.KpIndex.Append(0)
		b.Missing.Append(1)
	} else {
		b.KpIndex.Append(float32(s.Value()))
		b.Missing.Append(0)
	}
	b.Kp.Append(int16(s.Kp))
	b.SourceFile.Append(sourceFile)
}

// Flush inserts the buffered rows and resets the batch.
func (b *KpBatch) Flush(ctx context.Context, conn Executor, tableFQN string) error {
	if b.Len() == 0 {
		return nil
	}
	query := fmt.Sprintf("INSERT INTO %s (date, time, kp_index, kp, missing, source_file) VALUES", tableFQN)
	if err := conn.Do(ctx, ch.Query{Body: query, Input: b.Input()}); err != nil {
		return fmt.Errorf("insert into %s: %w", tableFQN, err)
	}
	b.Reset()
	return nil
}

// InsertSeries loads s into tableFQN, flushing every BatchLimit rows, and
// returns the number of rows inserted.
func InsertSeries(ctx context.Context, conn Executor, tableFQN string, s *kp.Series, sourceFile string) (int, error) {
	batch := NewKpBatch()
	inserted := 0
	for _, smp := range s.Samples {
		batch.AddSample(smp, sourceFile)
		if batch.Len() >= BatchLimit {
			n := batch.Len()
			if err := batch.Flush(ctx, conn, tableFQN); err != nil {
				return inserted, err
			}
			inserted += n
		}
	}
	n := batch.Len()
	if err := batch.Flush(ctx, conn, tableFQN); err != nil {
		return inserted, err
	}
	return inserted + n, nil
}

// CreateKpTable runs KpTableDDL.
func CreateKpTable(ctx context.Context, conn Executor, tableFQN string) error {
	return conn.Do(ctx, ch.Query{Body: KpTableDDL(tableFQN)})
}

// Truncate empties tableFQN.
func Truncate(ctx context.Context, conn Executor, tableFQN string) error {
	return conn.Do(ctx, ch.Query{Body: fmt.Sprintf("TRUNCATE TABLE %s", tableFQN)})
}
