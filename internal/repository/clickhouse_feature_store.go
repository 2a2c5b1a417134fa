package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CandleInsight/internal/domain/models"
	domrepo "CandleInsight/internal/domain/repository"
	pkgch "CandleInsight/pkg/clickhouse"
	applogger "CandleInsight/pkg/logger"
)

// CHFeatureStore reads OHLCV candles from per-timeframe ClickHouse tables
// named <base>_<tf>, e.g. market.candles_1m.
type CHFeatureStore struct {
	db   *sql.DB
	base string
	l    *applogger.Logger
}

var _ domrepo.FeatureStore = (*CHFeatureStore)(nil)

func NewCHFeatureStore(ch *pkgch.Client, baseTable string, l *applogger.Logger) *CHFeatureStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHFeatureStore{db: ch.DB(), base: ch.Table(baseTable), l: l}
}

// GetLatestNCandles returns up to n candles, oldest first.
func (s *CHFeatureStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	table, err := tableForTF(s.base, tf)
	if err != nil {
		return nil, err
	}
	fields := []applogger.Field{
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.Int("limit", n),
	}

	q := fmt.Sprintf(`
		SELECT ts, open, high, low, close, volume
		FROM %s
		WHERE symbol = ?
		ORDER BY ts DESC
		LIMIT ?`, table)
	rows, err := s.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		s.l.Error("clickhouse latest_candles query error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, n)
	for rows.Next() {
		var (
			c  models.Candle
			ts time.Time
		)
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.l.Error("clickhouse latest_candles scan error", append(fields, applogger.Error(err))...)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Timestamp = ts.UnixMilli()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse latest_candles rows error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("rows: %w", err)
	}

	reverseCandles(out)
	s.l.Debug("clickhouse latest_candles ok", append(fields,
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)...)
	return out, nil
}

// reverseCandles flips a DESC result set to ascending time.
func reverseCandles(c []models.Candle) {
	for i, j := 0, len(c)-1; i < j; i, j = i+1, j-1 {
		c[i], c[j] = c[j], c[i]
	}
}

func tableForTF(base string, tf domrepo.Timeframe) (string, error) {
	if !tf.Valid() {
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
	return base + "_" + string(tf), nil
}
