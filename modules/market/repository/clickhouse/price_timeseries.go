package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/cockroachdb/errors"
	"github.com/runixlabs/runes-indexer/modules/market/datagateway"
	"github.com/runixlabs/runes-indexer/modules/market/entity"
	"github.com/shopspring/decimal"
)

// PriceTimeseriesStore implements the price timeseries data gateway on
// ClickHouse.
type PriceTimeseriesStore struct {
	conn driver.Conn
}

var _ datagateway.PriceTimeseriesDataGateway = (*PriceTimeseriesStore)(nil)

func NewPriceTimeseriesStore(conn driver.Conn) *PriceTimeseriesStore {
	return &PriceTimeseriesStore{conn: conn}
}

func (s *PriceTimeseriesStore) InsertPricePoints(ctx context.Context, points []*entity.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_price_points (pair_id, timestamp, price, volume)
	`)
	if err != nil {
		return errors.Wrap(err, "can't prepare batch")
	}
	for _, point := range points {
		price, _ := point.Price.Float64()
		volume, _ := point.Volume.Float64()
		if err := batch.Append(point.PairId, point.Timestamp, price, volume); err != nil {
			return errors.Wrap(err, "can't append to batch")
		}
	}
	if err := batch.Send(); err != nil {
		return errors.Wrap(err, "can't send batch")
	}
	return nil
}

var scaleIntervals = map[entity.Scale]string{
	entity.ScaleMinute: "toStartOfMinute(timestamp)",
	entity.ScaleHour:   "toStartOfHour(timestamp)",
	entity.ScaleDay:    "toStartOfDay(timestamp)",
}

func (s *PriceTimeseriesStore) GetCandles(ctx context.Context, pairId int64, scale entity.Scale, start, end time.Time) ([]*entity.Candle, error) {
	bucket, ok := scaleIntervals[scale]
	if !ok {
		return nil, errors.Newf("unsupported scale %q", scale)
	}

	query := `
		SELECT ` + bucket + ` AS bucket,
			argMin(price, timestamp) AS open,
			max(price) AS high,
			min(price) AS low,
			argMax(price, timestamp) AS close,
			sum(volume) AS volume
		FROM market_price_points
		WHERE pair_id = ? AND timestamp >= ? AND timestamp <= ?
		GROUP BY bucket
		ORDER BY bucket ASC
	`
	rows, err := s.conn.Query(ctx, query, pairId, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "can't query candles")
	}
	defer rows.Close()

	candles := make([]*entity.Candle, 0)
	for rows.Next() {
		var (
			candle                         entity.Candle
			open, high, low, close, volume float64
		)
		if err := rows.Scan(&candle.Timestamp, &open, &high, &low, &close, &volume); err != nil {
			return nil, errors.Wrap(err, "can't scan candle")
		}
		candle.Open = decimal.NewFromFloat(open)
		candle.High = decimal.NewFromFloat(high)
		candle.Low = decimal.NewFromFloat(low)
		candle.Close = decimal.NewFromFloat(close)
		candle.Volume = decimal.NewFromFloat(volume)
		candles = append(candles, &candle)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading candles")
	}
	return candles, nil
}
