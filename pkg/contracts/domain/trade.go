package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// TradeRecord is one closed position parsed from a broker trade-history export.
type TradeRecord struct {
	EntryTime  *time.Time `json:"entry_time"`
	ExitTime   *time.Time `json:"exit_time"`
	PositionID string     `json:"position_id"`
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"`
	Volume     float64    `json:"volume"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	StopLoss   NullFloat  `json:"stop_loss"`
	TakeProfit NullFloat  `json:"take_profit"`
	Commission float64    `json:"commission"`
	Swap       float64    `json:"swap"`

	// GrossProfit is the raw profit column before commission and swap.
	GrossProfit float64 `json:"gross_profit"`
	// NetProfit is the explicit net-profit column when present, otherwise
	// Commission + Swap + GrossProfit.
	NetProfit float64 `json:"net_profit"`

	AccountID  *string `json:"account_id,omitempty"`
	EntryBasis *string `json:"entry_basis,omitempty"`
	Note       *string `json:"note,omitempty"`
}

// HasExit reports whether the record carries a usable exit time.
func (r TradeRecord) HasExit() bool {
	return r.ExitTime != nil && !r.ExitTime.IsZero()
}

// NullFloat is a float64 that may be absent.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Float returns a present NullFloat.
func Float(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

// MarshalJSON emits null for an absent value.
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.Float64, 'f', -1, 64)), nil
}

// UnmarshalJSON accepts a number or null.
func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Float(v)
	return nil
}
