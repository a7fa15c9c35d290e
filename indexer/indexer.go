// Package indexer journals ledger events into a SQL database so they can be
// queried after the fact.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"subledger/core/events"
	"subledger/core/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultLimit = 100
	maxLimit     = 1000
)

var ErrUnknownDriver = errors.New("indexer: unknown driver")

// EventRecord is one journaled event.
type EventRecord struct {
	Seq          uint64    `gorm:"primaryKey;autoIncrement"`
	EventID      uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Type         string    `gorm:"index;not null"`
	Height       uint64    `gorm:"index"`
	Provider     string    `gorm:"index"`
	Subscriber   string    `gorm:"index"`
	Subscription string    `gorm:"index"`
	Attributes   string    `gorm:"type:text"`
	CreatedAt    time.Time
}

// Decoded returns the record as a ledger event.
func (r EventRecord) Decoded() (*types.Event, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(r.Attributes) != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, err
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}

// Open connects to the journal database.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		return gorm.Open(sqlite.Open(dsn), cfg)
	case DriverPostgres:
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// Indexer writes emitted events to the journal. It implements events.Emitter.
type Indexer struct {
	db       *gorm.DB
	heightFn func() uint64
	logger   *slog.Logger
}

// New migrates the schema and returns an indexer over db.
func New(db *gorm.DB) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: slog.Default()}, nil
}

// SetHeightFunc configures the tick recorded alongside each event.
func (ix *Indexer) SetHeightFunc(fn func() uint64) { ix.heightFn = fn }

// SetLogger overrides the logger used for write failures.
func (ix *Indexer) SetLogger(l *slog.Logger) {
	if l != nil {
		ix.logger = l
	}
}

// Emit journals the event. Emitters cannot fail, so write errors are logged.
func (ix *Indexer) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok || payload.Event() == nil {
		return
	}
	var height uint64
	if ix.heightFn != nil {
		height = ix.heightFn()
	}
	if err := ix.Record(context.Background(), height, payload.Event()); err != nil {
		ix.logger.Error("indexer write failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Record journals a single event at height.
func (ix *Indexer) Record(ctx context.Context, height uint64, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	record := EventRecord{
		EventID:      uuid.New(),
		Type:         evt.Type,
		Height:       height,
		Provider:     evt.Attributes["provider"],
		Subscriber:   evt.Attributes["subscriber"],
		Subscription: evt.Attributes["key"],
		Attributes:   string(attrs),
	}
	return ix.db.WithContext(ctx).Create(&record).Error
}

// Filter narrows a List query. Zero values do not filter.
type Filter struct {
	Type         string
	Provider     string
	Subscriber   string
	Subscription string
	FromHeight   uint64
	ToHeight     uint64
	AfterSeq     uint64
	Limit        int
}

// List returns journaled events in emission order.
func (ix *Indexer) List(ctx context.Context, filter Filter) ([]EventRecord, error) {
	query := ix.db.WithContext(ctx).Model(&EventRecord{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Subscriber != "" {
		query = query.Where("subscriber = ?", filter.Subscriber)
	}
	if filter.Subscription != "" {
		query = query.Where("subscription = ?", filter.Subscription)
	}
	if filter.FromHeight > 0 {
		query = query.Where("height >= ?", filter.FromHeight)
	}
	if filter.ToHeight > 0 {
		query = query.Where("height <= ?", filter.ToHeight)
	}
	if filter.AfterSeq > 0 {
		query = query.Where("seq > ?", filter.AfterSeq)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	var records []EventRecord
	if err := query.Order("seq ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Close releases the database connection.
func (ix *Indexer) Close() error {
	sqlDB, err := ix.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
