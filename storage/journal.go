package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/burstbot/risk"
	"github.com/web3guy0/burstbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// JOURNAL - Trade attempt and risk close persistence
// ═══════════════════════════════════════════════════════════════════════════════

// Journal writes to SQLite by default, PostgreSQL for postgres:// DSNs
type Journal struct {
	db *gorm.DB
}

// Trade sources
const (
	SourceManual = "manual"
	SourceSignal = "signal"
	SourceShell  = "shell"
)

// Models

type TradeAttempt struct {
	ID          string          `gorm:"primaryKey"`
	Source      string          `gorm:"index"`
	Direction   string          // "UP" or "DOWN"
	Wager       decimal.Decimal `gorm:"type:decimal(20,6)"`
	Multiplier  decimal.Decimal `gorm:"type:decimal(20,6)"`
	Issued      bool
	Confirmed   bool
	Path        string // click, api, keystroke, none
	CountBefore int
	CountAfter  int
	SiteMessage string
	ErrorKind   string `gorm:"index"`
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
	CreatedAt   time.Time
}

type RiskClose struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	RowIndex  int
	Direction string
	PnL       decimal.Decimal `gorm:"type:decimal(20,6)"`
	Peak      decimal.Decimal `gorm:"type:decimal(20,6)"`
	PnLSource string
	Reason    string `gorm:"index"` // STOP_LOSS, TRAILING_STOP
	Method    string // position, all
	Closed    bool
	CreatedAt time.Time
}

type PositionSnapshot struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	BatchID      string `gorm:"index"`
	RowIndex     int
	Direction    string
	EntryPrice   decimal.Decimal `gorm:"type:decimal(20,6)"`
	CurrentPrice decimal.Decimal `gorm:"type:decimal(20,6)"`
	Wager        decimal.Decimal `gorm:"type:decimal(20,6)"`
	Multiplier   decimal.Decimal `gorm:"type:decimal(20,6)"`
	PnL          decimal.Decimal `gorm:"type:decimal(20,6)"`
	PnLSource    string
	CreatedAt    time.Time
}

// TradeStats summarizes the journal
type TradeStats struct {
	Attempts   int64
	Issued     int64
	Confirmed  int64
	Redirected int64
	Closes     int64
}

// New opens the journal and migrates its tables
func New(dsn string) (*Journal, error) {
	var db *gorm.DB
	var err error

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("💾 Journal connected (PostgreSQL)")
	} else {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("💾 Journal initialized (SQLite)")
	}

	if err := db.AutoMigrate(&TradeAttempt{}, &RiskClose{}, &PositionSnapshot{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close releases the connection pool
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ErrorKind names the error taxonomy member behind err
func ErrorKind(err error) string {
	kinds := []struct {
		target error
		name   string
	}{
		{types.ErrInvalidTradeRequest, "invalid_request"},
		{types.ErrMaxPositions, "max_positions"},
		{types.ErrNavigationRedirected, "navigation_redirected"},
		{types.ErrVerificationMismatch, "verification_mismatch"},
		{types.ErrElementNotFound, "element_not_found"},
		{types.ErrFallbackFailure, "fallback_failure"},
		{types.ErrParseAmbiguous, "parse_ambiguous"},
		{risk.ErrCircuitOpen, "circuit_open"},
	}
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.name
		}
	}
	return "other"
}

// Trade operations

// RecordTrade stores one sequencer result and returns its id
func (j *Journal) RecordTrade(source string, res types.TradeResult) (string, error) {
	row := TradeAttempt{
		ID:          uuid.NewString(),
		Source:      source,
		Direction:   res.Request.Direction.String(),
		Wager:       res.Request.Wager,
		Multiplier:  res.Request.Multiplier,
		Issued:      res.Issued,
		Confirmed:   res.Confirmed,
		Path:        string(res.Path),
		CountBefore: res.CountBefore,
		CountAfter:  res.CountAfter,
		SiteMessage: res.SiteMessage,
		ErrorKind:   ErrorKind(res.Err),
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
	}
	if res.Err != nil {
		row.Error = res.Err.Error()
	}
	if err := j.db.Create(&row).Error; err != nil {
		return "", err
	}
	return row.ID, nil
}

func (j *Journal) GetTrade(id string) (*TradeAttempt, error) {
	var t TradeAttempt
	err := j.db.First(&t, "id = ?", id).Error
	return &t, err
}

func (j *Journal) RecentTrades(limit int) ([]TradeAttempt, error) {
	var out []TradeAttempt
	err := j.db.Order("started_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// Risk operations

func (j *Journal) RecordClose(ev risk.CloseEvent) error {
	return j.db.Create(&RiskClose{
		RowIndex:  ev.Position.RowIndex,
		Direction: ev.Position.Direction.String(),
		PnL:       ev.Position.PnL,
		Peak:      ev.Peak,
		PnLSource: string(ev.Position.PnLSource),
		Reason:    string(ev.Reason),
		Method:    ev.Method,
		Closed:    ev.Closed,
	}).Error
}

func (j *Journal) RecentCloses(limit int) ([]RiskClose, error) {
	var out []RiskClose
	err := j.db.Order("id desc").Limit(limit).Find(&out).Error
	return out, err
}

// Snapshot operations

// RecordSnapshot stores one parse as a batch; an empty parse stores nothing
func (j *Journal) RecordSnapshot(ps []types.Position) (string, error) {
	if len(ps) == 0 {
		return "", nil
	}
	batch := uuid.NewString()
	rows := make([]PositionSnapshot, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, PositionSnapshot{
			BatchID:      batch,
			RowIndex:     p.RowIndex,
			Direction:    p.Direction.String(),
			EntryPrice:   p.EntryPrice,
			CurrentPrice: p.CurrentPrice,
			Wager:        p.Wager,
			Multiplier:   p.Multiplier,
			PnL:          p.PnL,
			PnLSource:    string(p.PnLSource),
		})
	}
	if err := j.db.Create(&rows).Error; err != nil {
		return "", err
	}
	return batch, nil
}

func (j *Journal) Snapshot(batch string) ([]PositionSnapshot, error) {
	var out []PositionSnapshot
	err := j.db.Where("batch_id = ?", batch).Order("row_index").Find(&out).Error
	return out, err
}

// LatestSnapshot returns the most recent batch, or nil when none exists
func (j *Journal) LatestSnapshot() ([]PositionSnapshot, error) {
	var last PositionSnapshot
	err := j.db.Order("id desc").Limit(1).Find(&last).Error
	if err != nil || last.BatchID == "" {
		return nil, err
	}
	return j.Snapshot(last.BatchID)
}

// Stats

func (j *Journal) Stats(since time.Time) (TradeStats, error) {
	var s TradeStats
	q := func(model any, where string, args ...any) *gorm.DB {
		return j.db.Model(model).Where(where, args...)
	}
	if err := q(&TradeAttempt{}, "started_at >= ?", since).Count(&s.Attempts).Error; err != nil {
		return s, err
	}
	if err := q(&TradeAttempt{}, "started_at >= ? AND issued = ?", since, true).Count(&s.Issued).Error; err != nil {
		return s, err
	}
	if err := q(&TradeAttempt{}, "started_at >= ? AND confirmed = ?", since, true).Count(&s.Confirmed).Error; err != nil {
		return s, err
	}
	if err := q(&TradeAttempt{}, "started_at >= ? AND error_kind = ?", since, "navigation_redirected").Count(&s.Redirected).Error; err != nil {
		return s, err
	}
	if err := q(&RiskClose{}, "created_at >= ?", since).Count(&s.Closes).Error; err != nil {
		return s, err
	}
	return s, nil
}
