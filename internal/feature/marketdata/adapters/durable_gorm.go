// Package adapters はmarketdataフィーチャーの永続化アダプターを提供します。
package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketdata_backend/internal/feature/marketdata/domain"
	"marketdata_backend/internal/feature/marketdata/domain/entity"
	"marketdata_backend/internal/feature/marketdata/usecase"
)

const (
	// DefaultKlineRetention はローソク足の保持期間です。
	DefaultKlineRetention = 7 * 24 * time.Hour
	// DefaultSnapshotRetention は気配・銘柄一覧スナップショットの保持期間です。
	DefaultSnapshotRetention = 30 * 24 * time.Hour

	stockListSnapshotID = 1
)

// QuoteSnapshotModel は銘柄ごとの最新気配です。
type QuoteSnapshotModel struct {
	ID       uint      `gorm:"primaryKey"`
	Code     string    `gorm:"size:16;not null;uniqueIndex"`
	QuotedAt int64     `gorm:"not null;index"`
	Payload  []byte    `gorm:"not null"`
	CachedAt time.Time `gorm:"not null;index"`
}

func (QuoteSnapshotModel) TableName() string { return "quote_snapshots" }

// KlineModel はローソク足1本です。(code, interval, ts) で一意です。
type KlineModel struct {
	ID       uint   `gorm:"primaryKey"`
	Code     string `gorm:"size:16;not null;uniqueIndex:kline_code_int_ts,priority:1"`
	Interval string `gorm:"column:kline_interval;size:8;not null;uniqueIndex:kline_code_int_ts,priority:2"`
	TS       int64  `gorm:"column:ts;not null;uniqueIndex:kline_code_int_ts,priority:3;index:kline_ts"`
	Date     string `gorm:"size:32;not null"`

	Open          float64 `gorm:"not null"`
	High          float64 `gorm:"not null"`
	Low           float64 `gorm:"not null"`
	Close         float64 `gorm:"not null"`
	Volume        float64 `gorm:"not null;default:0"`
	Amount        *float64
	ChangePercent *float64
	ChangeAmount  *float64
	TurnoverRate  *float64

	CachedAt time.Time `gorm:"not null;index"`
}

func (KlineModel) TableName() string { return "klines" }

// StockListSnapshotModel は銘柄一覧全体を1行で保持します。
type StockListSnapshotModel struct {
	ID       uint      `gorm:"primaryKey;autoIncrement:false"`
	Count    int       `gorm:"not null"`
	Payload  []byte    `gorm:"not null"`
	CachedAt time.Time `gorm:"not null;index"`
}

func (StockListSnapshotModel) TableName() string { return "stock_list_snapshots" }

// DurableModels はマイグレーション対象のモデルです。
func DurableModels() []any {
	return []any{&QuoteSnapshotModel{}, &KlineModel{}, &StockListSnapshotModel{}}
}

type durableGorm struct {
	db  *gorm.DB
	now func() time.Time

	klineRetention    time.Duration
	snapshotRetention time.Duration
}

var _ usecase.DurableCache = (*durableGorm)(nil)

// DurableOption configures the durable tier.
type DurableOption func(*durableGorm)

// WithDurableClock はテスト用に時計を差し替えます。
func WithDurableClock(now func() time.Time) DurableOption {
	return func(d *durableGorm) { d.now = now }
}

// WithRetention は Sweep の保持期間を変更します。0 以下の値は既定値のままです。
func WithRetention(kline, snapshot time.Duration) DurableOption {
	return func(d *durableGorm) {
		if kline > 0 {
			d.klineRetention = kline
		}
		if snapshot > 0 {
			d.snapshotRetention = snapshot
		}
	}
}

// NewDurableCache は gorm をバックエンドとする永続キャッシュ層を生成します。
func NewDurableCache(db *gorm.DB, opts ...DurableOption) *durableGorm {
	d := &durableGorm{
		db:                db,
		now:               time.Now,
		klineRetention:    DefaultKlineRetention,
		snapshotRetention: DefaultSnapshotRetention,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// clock はUTCの現在時刻を返します。SQLiteでは時刻が文字列比較になるため常にUTCで保存します。
func (r *durableGorm) clock() time.Time {
	return r.now().UTC()
}

// GetQuoteSnapshot は maxAge 以内に保存された気配を返します。古いものはミスです。
func (r *durableGorm) GetQuoteSnapshot(ctx context.Context, code string, maxAge time.Duration) (*entity.RealtimeQuote, error) {
	var m QuoteSnapshotModel
	err := r.db.WithContext(ctx).
		Where(&QuoteSnapshotModel{Code: code}).
		Where("cached_at >= ?", r.clock().Add(-maxAge)).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var q entity.RealtimeQuote
	if err := json.Unmarshal(m.Payload, &q); err != nil {
		return nil, fmt.Errorf("decode quote snapshot %s: %w", code, err)
	}
	return &q, nil
}

// UpsertQuoteSnapshots は銘柄ごとに最新気配を上書きします。
func (r *durableGorm) UpsertQuoteSnapshots(ctx context.Context, quotes []entity.RealtimeQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	now := r.clock()
	ms := make([]QuoteSnapshotModel, 0, len(quotes))
	for _, q := range quotes {
		b, err := json.Marshal(q)
		if err != nil {
			return err
		}
		ms = append(ms, QuoteSnapshotModel{Code: q.Code, QuotedAt: q.Timestamp, Payload: b, CachedAt: now})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"quoted_at", "payload", "cached_at"}),
	}).Create(&ms).Error
}

// GetKlineRange は期間内のローソク足を時刻の昇順で返します。
// start / end がゼロ値の場合はその側を制限しません。
func (r *durableGorm) GetKlineRange(ctx context.Context, code string, interval entity.Interval, start, end time.Time) ([]entity.KlineBar, error) {
	q := r.db.WithContext(ctx).
		Where(&KlineModel{Code: code, Interval: string(interval)})
	if !start.IsZero() {
		q = q.Where("ts >= ?", start.UnixMilli())
	}
	if !end.IsZero() {
		q = q.Where("ts <= ?", end.UnixMilli())
	}

	var rows []KlineModel
	if err := q.Order("ts ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.KlineBar, 0, len(rows))
	for _, m := range rows {
		out = append(out, entity.KlineBar{
			Timestamp:     m.TS,
			Date:          m.Date,
			Open:          m.Open,
			High:          m.High,
			Low:           m.Low,
			Close:         m.Close,
			Volume:        m.Volume,
			Amount:        m.Amount,
			ChangePercent: m.ChangePercent,
			ChangeAmount:  m.ChangeAmount,
			TurnoverRate:  m.TurnoverRate,
		})
	}
	return out, nil
}

// UpsertKline は (code, interval, ts) をキーに1本ずつ上書きします。後勝ちです。
func (r *durableGorm) UpsertKline(ctx context.Context, code string, interval entity.Interval, bars []entity.KlineBar) error {
	if len(bars) == 0 {
		return nil
	}
	now := r.clock()
	// 同一バッチ内の重複は最後の値を採用する
	byTS := make(map[int64]int, len(bars))
	ms := make([]KlineModel, 0, len(bars))
	for _, b := range bars {
		m := KlineModel{
			Code:          code,
			Interval:      string(interval),
			TS:            b.Timestamp,
			Date:          b.Date,
			Open:          b.Open,
			High:          b.High,
			Low:           b.Low,
			Close:         b.Close,
			Volume:        b.Volume,
			Amount:        b.Amount,
			ChangePercent: b.ChangePercent,
			ChangeAmount:  b.ChangeAmount,
			TurnoverRate:  b.TurnoverRate,
			CachedAt:      now,
		}
		if i, ok := byTS[b.Timestamp]; ok {
			ms[i] = m
			continue
		}
		byTS[b.Timestamp] = len(ms)
		ms = append(ms, m)
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}, {Name: "kline_interval"}, {Name: "ts"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"date", "open", "high", "low", "close", "volume",
			"amount", "change_percent", "change_amount", "turnover_rate", "cached_at",
		}),
	}).CreateInBatches(&ms, 500).Error
}

// GetStockListSnapshot は保存済みの銘柄一覧を返します。
func (r *durableGorm) GetStockListSnapshot(ctx context.Context) ([]entity.StockBasic, error) {
	var m StockListSnapshotModel
	err := r.db.WithContext(ctx).Take(&m, stockListSnapshotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var stocks []entity.StockBasic
	if err := json.Unmarshal(m.Payload, &stocks); err != nil {
		return nil, fmt.Errorf("decode stock list snapshot: %w", err)
	}
	if len(stocks) == 0 {
		return nil, domain.ErrCacheMiss
	}
	return stocks, nil
}

// UpsertStockListSnapshot は銘柄一覧を丸ごと置き換えます。
func (r *durableGorm) UpsertStockListSnapshot(ctx context.Context, stocks []entity.StockBasic) error {
	b, err := json.Marshal(stocks)
	if err != nil {
		return err
	}
	m := StockListSnapshotModel{ID: stockListSnapshotID, Count: len(stocks), Payload: b, CachedAt: r.clock()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"count", "payload", "cached_at"}),
	}).Create(&m).Error
}

// DeleteCode は銘柄の気配スナップショットとローソク足を削除します。
func (r *durableGorm) DeleteCode(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where(&QuoteSnapshotModel{Code: code}).Delete(&QuoteSnapshotModel{}).Error; err != nil {
			return err
		}
		return tx.Where(&KlineModel{Code: code}).Delete(&KlineModel{}).Error
	})
}

// Clear は全テーブルを空にします。
func (r *durableGorm) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range DurableModels() {
			if err := tx.Where("1 = 1").Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats はテーブルごとの行数を返します。
func (r *durableGorm) Stats(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, 3)
	for name, m := range map[string]any{
		QuoteSnapshotModel{}.TableName():     &QuoteSnapshotModel{},
		KlineModel{}.TableName():             &KlineModel{},
		StockListSnapshotModel{}.TableName(): &StockListSnapshotModel{},
	} {
		var n int64
		if err := r.db.WithContext(ctx).Model(m).Count(&n).Error; err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, nil
}

// Sweep は保持期間を過ぎた行を削除し、削除件数を返します。
func (r *durableGorm) Sweep(ctx context.Context) (int64, error) {
	now := r.clock()
	var total int64

	res := r.db.WithContext(ctx).Where("cached_at < ?", now.Add(-r.klineRetention)).Delete(&KlineModel{})
	if res.Error != nil {
		return total, res.Error
	}
	total += res.RowsAffected

	for _, m := range []any{&QuoteSnapshotModel{}, &StockListSnapshotModel{}} {
		res := r.db.WithContext(ctx).Where("cached_at < ?", now.Add(-r.snapshotRetention)).Delete(m)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

// RunSweeper は ctx がキャンセルされるまで every ごとに Sweep を実行します。
func (r *durableGorm) RunSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				slog.Warn("durable cache sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("durable cache swept", "deleted", n)
			}
		}
	}
}

// Ping はデータベースへの疎通を確認します。
func (r *durableGorm) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close はコネクションプールを閉じます。
func (r *durableGorm) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
