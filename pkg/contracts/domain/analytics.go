package domain

// Summary holds headline statistics over a set of trade records.
type Summary struct {
	TotalTrades int     `json:"total_trades"`
	TotalProfit float64 `json:"total_profit"`
	WinCount    int     `json:"win_count"`
	LossCount   int     `json:"loss_count"`
	WinRate     float64 `json:"win_rate"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`

	TotalGrossProfit float64 `json:"total_gross_profit"`
	TotalCommission  float64 `json:"total_commission"`
	TotalSwap        float64 `json:"total_swap"`
	TradingDays      int     `json:"trading_days"`
	// ProfitLossRatio is AvgWin / |AvgLoss|, zero when there are no losses.
	ProfitLossRatio float64 `json:"profit_loss_ratio"`
}

// PeriodBucket is one point of a time-bucketed profit series.
type PeriodBucket struct {
	Key        string  `json:"key"`
	Label      string  `json:"label"`
	Profit     float64 `json:"profit"`
	Cumulative float64 `json:"cumulative"`
}

// DailyBucket adds a weekday name and a per-symbol breakdown.
type DailyBucket struct {
	PeriodBucket
	Weekday  string             `json:"weekday"`
	BySymbol map[string]float64 `json:"by_symbol"`
}

// WeeklyBucket covers a Monday to Sunday week keyed by its Monday.
type WeeklyBucket struct {
	PeriodBucket
	WeekStart string `json:"week_start"`
	WeekEnd   string `json:"week_end"`
}

// SymbolStats holds per-instrument statistics.
type SymbolStats struct {
	Symbol      string  `json:"symbol"`
	TradeCount  int     `json:"trade_count"`
	TotalProfit float64 `json:"total_profit"`
	TotalVolume float64 `json:"total_volume"`
	WinCount    int     `json:"win_count"`
	LossCount   int     `json:"loss_count"`
	WinRate     float64 `json:"win_rate"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`
}

// DateRange selects records by exit date. Dates are YYYY-MM-DD; an empty
// bound is open. FullRange disables filtering entirely.
type DateRange struct {
	StartDate string `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	FullRange bool   `json:"full_range"`
}

// DataBounds is the earliest and latest exit day in a record set.
type DataBounds struct {
	MinDate string `json:"min_date"`
	MaxDate string `json:"max_date"`
}

// CalendarDay is one cell of a month calendar.
type CalendarDay struct {
	Date     string  `json:"date"`
	Day      int     `json:"day"`
	InMonth  bool    `json:"in_month"`
	Profit   float64 `json:"profit"`
	HasTrade bool    `json:"has_trade"`
}

// CalendarWeek is one Monday-first row of a month calendar.
type CalendarWeek struct {
	Days  []CalendarDay `json:"days"`
	Total float64       `json:"total"`
}

// CalendarMonth is a profit calendar for a single month.
type CalendarMonth struct {
	Month string         `json:"month"`
	Weeks []CalendarWeek `json:"weeks"`
	Total float64        `json:"total"`
}

// Analysis bundles every derived view for one filtered record set.
type Analysis struct {
	Source  string         `json:"source,omitempty"`
	Range   DateRange      `json:"range"`
	Bounds  DataBounds     `json:"bounds"`
	Summary Summary        `json:"summary"`
	Daily   []DailyBucket  `json:"daily"`
	Weekly  []WeeklyBucket `json:"weekly"`
	Monthly []PeriodBucket `json:"monthly"`
	Symbols []SymbolStats  `json:"symbols"`
	Records []TradeRecord  `json:"records,omitempty"`
}
