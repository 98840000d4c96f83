// Package journal mirrors every decision response into a sqlite database
// for ad-hoc queries and reporting. The CSV ledger stays the audit record;
// the journal is the queryable copy and is written best-effort after it.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reentry/internal/reentry"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Store wraps a gorm-managed sqlite database of decision rows.
type Store struct {
	db *gorm.DB
}

// Entry is one journaled decision with its recording time and trace id.
type Entry struct {
	Response   reentry.Response
	TraceID    string
	RecordedAt time.Time
}

type decisionModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	TraceID        string         `gorm:"column:trace_id;index"`
	TradeID        string         `gorm:"column:trade_id;index"`
	Symbol         string         `gorm:"column:symbol;index"`
	Status         string         `gorm:"column:status;index"`
	Reason         string         `gorm:"column:reason"`
	Classification string         `gorm:"column:classification"`
	HybridID       string         `gorm:"column:hybrid_id"`
	Action         string         `gorm:"column:action"`
	ParameterSetID string         `gorm:"column:parameter_set_id"`
	Tier           string         `gorm:"column:tier"`
	ChainPosition  string         `gorm:"column:chain_position"`
	LotSize        float64        `gorm:"column:lot_size"`
	StopLoss       float64        `gorm:"column:stop_loss"`
	TakeProfit     float64        `gorm:"column:take_profit"`
	Confidence     float64        `gorm:"column:confidence_score"`
	LedgerSeq      uint64         `gorm:"column:ledger_seq"`
	Payload        datatypes.JSON `gorm:"column:payload"`
	CreatedAtUnix  int64          `gorm:"column:created_at;index"`
}

func (decisionModel) TableName() string { return "decision_journal" }

// Open opens or creates the journal database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&decisionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: one writer, a little read parallelism for reporting.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record appends one response row. Skipped responses are journaled too;
// the reason column is what makes the skip auditable later.
func (s *Store) Record(ctx context.Context, resp reentry.Response) error {
	if s == nil || s.db == nil {
		return errors.New("journal: store not initialized")
	}
	if strings.TrimSpace(resp.TradeID) == "" {
		return errors.New("journal: response has no trade_id")
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("journal: encode response: %w", err)
	}
	model := decisionModel{
		TraceID:        uuid.NewString(),
		TradeID:        strings.TrimSpace(resp.TradeID),
		Symbol:         strings.ToUpper(strings.TrimSpace(resp.Symbol)),
		Status:         resp.Status,
		Reason:         resp.Reason,
		Classification: resp.Classification,
		HybridID:       resp.Identifier,
		Action:         resp.ReentryAction,
		ParameterSetID: resp.ParameterSetID,
		Tier:           resp.ResolvedTier,
		ChainPosition:  resp.ChainPosition,
		LotSize:        resp.LotSize,
		StopLoss:       resp.StopLoss,
		TakeProfit:     resp.TakeProfit,
		Confidence:     resp.ConfidenceScore,
		LedgerSeq:      resp.LedgerSeq,
		Payload:        datatypes.JSON(payload),
		CreatedAtUnix:  time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// Recent returns the newest entries, optionally filtered by symbol.
func (s *Store) Recent(ctx context.Context, symbol string, limit int) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("journal: store not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Model(&decisionModel{})
	if sym := strings.ToUpper(strings.TrimSpace(symbol)); sym != "" {
		query = query.Where("symbol = ?", sym)
	}
	var models []decisionModel
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(models))
	for _, m := range models {
		out = append(out, Entry{
			Response:   modelToResponse(m),
			TraceID:    m.TraceID,
			RecordedAt: time.UnixMilli(m.CreatedAtUnix).UTC(),
		})
	}
	return out, nil
}

// CountByStatus aggregates journaled rows per response status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("journal: store not initialized")
	}
	var rows []struct {
		Status string
		N      int64
	}
	err := s.db.WithContext(ctx).Model(&decisionModel{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

func modelToResponse(m decisionModel) reentry.Response {
	return reentry.Response{
		Status:          m.Status,
		Reason:          m.Reason,
		TradeID:         m.TradeID,
		Symbol:          m.Symbol,
		Classification:  m.Classification,
		Identifier:      m.HybridID,
		ReentryAction:   m.Action,
		ParameterSetID:  m.ParameterSetID,
		ResolvedTier:    m.Tier,
		ChainPosition:   m.ChainPosition,
		LotSize:         m.LotSize,
		StopLoss:        m.StopLoss,
		TakeProfit:      m.TakeProfit,
		ConfidenceScore: m.Confidence,
		LedgerSeq:       m.LedgerSeq,
	}
}
