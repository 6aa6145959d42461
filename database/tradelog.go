package database

import (
	"database/sql"
	"fmt"

	"github.com/epic1st/rtx/backend/internal/core"
)

// TradeLogStore persists the settlement snapshot an Engine.Settle call
// returns, so a day's fills and closing positions survive past the
// in-memory engine's lifetime.
type TradeLogStore struct {
	db *sql.DB
}

func NewTradeLogStore(db *sql.DB) *TradeLogStore {
	return &TradeLogStore{db: db}
}

// Save writes one settlement's trade log inside a single transaction.
func (s *TradeLogStore) Save(accountKey string, log core.TradeLog) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var settlementID int64
	err = tx.QueryRow(`
		INSERT INTO settlements (account_key, pre_balance, balance, available, risk_ratio)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, accountKey, log.Account.PreBalance, log.Account.Balance, log.Account.Available, log.Account.RiskRatio).Scan(&settlementID)
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}

	for _, t := range log.Trades {
		_, err = tx.Exec(`
			INSERT INTO settlement_trades
				(settlement_id, trade_id, order_id, exchange_id, instrument_id, direction, offset_flag, price, volume, commission, trade_date_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, settlementID, t.TradeID, t.OrderID, t.ExchangeID, t.InstrumentID, string(t.Direction), string(t.Offset), t.Price, t.Volume, t.Commission, t.TradeDateTime)
		if err != nil {
			return fmt.Errorf("insert settlement trade %s: %w", t.TradeID, err)
		}
	}

	for symbol, p := range log.Positions {
		_, err = tx.Exec(`
			INSERT INTO settlement_positions
				(settlement_id, exchange_id, instrument_id, volume_long, volume_short, position_profit, margin)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, settlementID, p.ExchangeID, p.InstrumentID, p.VolumeLong, p.VolumeShort, p.PositionProfit, p.Margin)
		if err != nil {
			return fmt.Errorf("insert settlement position %s: %w", symbol, err)
		}
	}

	return tx.Commit()
}
