package dataprocessing

import (
	"fmt"
	"sort"
	"time"

	"github.com/jinzhu/now"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"tradepulse/pkg/contracts/domain"
)

const (
	dayKeyLayout   = "2006-01-02"
	monthKeyLayout = "2006-01"
	weekLabelDay   = "01/02"

	// UnknownSymbol labels trades without a symbol in per-day breakdowns.
	UnknownSymbol = "Unknown"
)

var (
	weekdayLocales = []language.Tag{language.Korean, language.English}
	weekdayMatcher = language.NewMatcher(weekdayLocales)
	weekdayNames   = [][7]string{
		{"일", "월", "화", "수", "목", "금", "토"},
		{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
	}
)

// Aggregator derives summary statistics and bucketed profit series from
// trade records. Every method recomputes from its input and never mutates it.
type Aggregator struct {
	location *time.Location
	weekdays [7]string
	calendar *now.Config
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorLocation sets the location that defines calendar days.
func WithAggregatorLocation(loc *time.Location) AggregatorOption {
	return func(a *Aggregator) {
		if loc != nil {
			a.location = loc
		}
	}
}

// WithWeekdayLocale picks weekday names for labels from a BCP 47 tag.
// Korean is used when nothing matches.
func WithWeekdayLocale(locale string) AggregatorOption {
	return func(a *Aggregator) {
		_, idx := language.MatchStrings(weekdayMatcher, locale)
		a.weekdays = weekdayNames[idx]
	}
}

// NewAggregator creates an Aggregator using time.Local and Korean weekday
// names unless overridden.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		location: time.Local,
		weekdays: weekdayNames[0],
	}
	for _, opt := range opts {
		opt(a)
	}
	a.calendar = &now.Config{
		WeekStartDay: time.Monday,
		TimeLocation: a.location,
	}
	return a
}

// Location returns the location that defines calendar days.
func (a *Aggregator) Location() *time.Location {
	return a.location
}

func (a *Aggregator) local(t *time.Time) time.Time {
	return t.In(a.location)
}

func (a *Aggregator) weekday(t time.Time) string {
	return a.weekdays[t.Weekday()]
}

func (a *Aggregator) parseDay(s string) (time.Time, error) {
	return time.ParseInLocation(dayKeyLayout, s, a.location)
}

// FilterByDateRange keeps records whose exit time falls inside r, with
// start and end dates widened to the whole day. A full range returns the
// input unchanged. Records without an exit time never match a bounded range,
// and a bound that is not a valid date matches nothing.
func (a *Aggregator) FilterByDateRange(records []domain.TradeRecord, r domain.DateRange) []domain.TradeRecord {
	if r.FullRange {
		return records
	}

	var start, end *time.Time
	if r.StartDate != "" {
		t, err := a.parseDay(r.StartDate)
		if err != nil {
			return []domain.TradeRecord{}
		}
		s := a.calendar.With(t).BeginningOfDay()
		start = &s
	}
	if r.EndDate != "" {
		t, err := a.parseDay(r.EndDate)
		if err != nil {
			return []domain.TradeRecord{}
		}
		e := a.calendar.With(t).EndOfDay()
		end = &e
	}

	out := make([]domain.TradeRecord, 0, len(records))
	for _, rec := range records {
		if !rec.HasExit() {
			continue
		}
		exit := *rec.ExitTime
		if start != nil && exit.Before(*start) {
			continue
		}
		if end != nil && exit.After(*end) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// tally accumulates win/loss statistics with exact decimal sums.
type tally struct {
	count   int
	wins    int
	losses  int
	total   decimal.Decimal
	winSum  decimal.Decimal
	lossSum decimal.Decimal
}

func (t *tally) add(profit float64) {
	p := decimal.NewFromFloat(profit)
	t.count++
	t.total = t.total.Add(p)
	switch {
	case profit > 0:
		t.wins++
		t.winSum = t.winSum.Add(p)
	case profit < 0:
		t.losses++
		t.lossSum = t.lossSum.Add(p)
	}
}

func (t *tally) winRate() float64 {
	if t.count == 0 {
		return 0
	}
	return float64(t.wins) / float64(t.count) * 100
}

func (t *tally) avgWin() float64 {
	return mean(t.winSum, t.wins)
}

func (t *tally) avgLoss() float64 {
	return mean(t.lossSum, t.losses)
}

func mean(sum decimal.Decimal, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum.Div(decimal.NewFromInt(int64(n))).InexactFloat64()
}

// Summarize computes headline statistics over records with an exit time.
// Trades with exactly zero net profit count toward the total only.
func (a *Aggregator) Summarize(records []domain.TradeRecord) domain.Summary {
	var (
		t          tally
		gross      decimal.Decimal
		commission decimal.Decimal
		swap       decimal.Decimal
		days       = make(map[string]struct{})
	)
	for _, rec := range records {
		if !rec.HasExit() {
			continue
		}
		t.add(rec.NetProfit)
		gross = gross.Add(decimal.NewFromFloat(rec.GrossProfit))
		commission = commission.Add(decimal.NewFromFloat(rec.Commission))
		swap = swap.Add(decimal.NewFromFloat(rec.Swap))
		days[a.local(rec.ExitTime).Format(dayKeyLayout)] = struct{}{}
	}

	s := domain.Summary{
		TotalTrades:      t.count,
		TotalProfit:      t.total.InexactFloat64(),
		WinCount:         t.wins,
		LossCount:        t.losses,
		WinRate:          t.winRate(),
		AvgWin:           t.avgWin(),
		AvgLoss:          t.avgLoss(),
		TotalGrossProfit: gross.InexactFloat64(),
		TotalCommission:  commission.InexactFloat64(),
		TotalSwap:        swap.InexactFloat64(),
		TradingDays:      len(days),
	}
	if s.AvgLoss != 0 {
		s.ProfitLossRatio = s.AvgWin / -s.AvgLoss
	}
	return s
}

// bucketSums groups net profit by key and returns the keys in ascending
// order alongside their sums.
type bucketSums struct {
	keys []string
	sums map[string]decimal.Decimal
}

func newBucketSums() *bucketSums {
	return &bucketSums{sums: make(map[string]decimal.Decimal)}
}

func (b *bucketSums) add(key string, profit float64) {
	cur, ok := b.sums[key]
	if !ok {
		b.keys = append(b.keys, key)
	}
	b.sums[key] = cur.Add(decimal.NewFromFloat(profit))
}

// sorted walks keys in ascending order, yielding each bucket's profit and
// the running cumulative total.
func (b *bucketSums) sorted(fn func(key string, profit, cumulative float64)) {
	sort.Strings(b.keys)
	cumulative := decimal.Zero
	for _, k := range b.keys {
		cumulative = cumulative.Add(b.sums[k])
		fn(k, b.sums[k].InexactFloat64(), cumulative.InexactFloat64())
	}
}

// AggregateDaily groups records by local exit day with a per-symbol
// breakdown and running cumulative profit.
func (a *Aggregator) AggregateDaily(records []domain.TradeRecord) []domain.DailyBucket {
	days := newBucketSums()
	bySymbol := make(map[string]map[string]decimal.Decimal)
	for _, rec := range records {
		if !rec.HasExit() {
			continue
		}
		key := a.local(rec.ExitTime).Format(dayKeyLayout)
		days.add(key, rec.NetProfit)

		symbol := rec.Symbol
		if symbol == "" {
			symbol = UnknownSymbol
		}
		if bySymbol[key] == nil {
			bySymbol[key] = make(map[string]decimal.Decimal)
		}
		bySymbol[key][symbol] = bySymbol[key][symbol].Add(decimal.NewFromFloat(rec.NetProfit))
	}

	out := make([]domain.DailyBucket, 0, len(days.keys))
	days.sorted(func(key string, profit, cumulative float64) {
		day, _ := a.parseDay(key)
		symbols := make(map[string]float64, len(bySymbol[key]))
		for s, v := range bySymbol[key] {
			symbols[s] = v.InexactFloat64()
		}
		out = append(out, domain.DailyBucket{
			PeriodBucket: domain.PeriodBucket{
				Key:        key,
				Label:      fmt.Sprintf("%s (%s)", key, a.weekday(day)),
				Profit:     profit,
				Cumulative: cumulative,
			},
			Weekday:  a.weekday(day),
			BySymbol: symbols,
		})
	})
	return out
}

// AggregateWeekly groups records into Monday to Sunday weeks keyed by the
// Monday's date.
func (a *Aggregator) AggregateWeekly(records []domain.TradeRecord) []domain.WeeklyBucket {
	weeks := newBucketSums()
	for _, rec := range records {
		if !rec.HasExit() {
			continue
		}
		monday := a.calendar.With(a.local(rec.ExitTime)).BeginningOfWeek()
		weeks.add(monday.Format(dayKeyLayout), rec.NetProfit)
	}

	out := make([]domain.WeeklyBucket, 0, len(weeks.keys))
	weeks.sorted(func(key string, profit, cumulative float64) {
		start, _ := a.parseDay(key)
		end := a.calendar.With(start).EndOfWeek()
		out = append(out, domain.WeeklyBucket{
			PeriodBucket: domain.PeriodBucket{
				Key: key,
				Label: fmt.Sprintf("%s (%s) ~ %s (%s)",
					start.Format(weekLabelDay), a.weekday(start),
					end.Format(weekLabelDay), a.weekday(end)),
				Profit:     profit,
				Cumulative: cumulative,
			},
			WeekStart: key,
			WeekEnd:   end.Format(dayKeyLayout),
		})
	})
	return out
}

// AggregateMonthly groups records by YYYY-MM of the exit time.
func (a *Aggregator) AggregateMonthly(records []domain.TradeRecord) []domain.PeriodBucket {
	months := newBucketSums()
	for _, rec := range records {
		if !rec.HasExit() {
			continue
		}
		months.add(a.local(rec.ExitTime).Format(monthKeyLayout), rec.NetProfit)
	}

	out := make([]domain.PeriodBucket, 0, len(months.keys))
	months.sorted(func(key string, profit, cumulative float64) {
		out = append(out, domain.PeriodBucket{
			Key:        key,
			Label:      key,
			Profit:     profit,
			Cumulative: cumulative,
		})
	})
	return out
}

// AggregateBySymbol computes per-symbol statistics ordered by trade count,
// highest first. Symbols with equal counts keep first-appearance order.
func (a *Aggregator) AggregateBySymbol(records []domain.TradeRecord) []domain.SymbolStats {
	var order []string
	tallies := make(map[string]*tally)
	volumes := make(map[string]decimal.Decimal)
	for _, rec := range records {
		if !rec.HasExit() || rec.Symbol == "" {
			continue
		}
		t, ok := tallies[rec.Symbol]
		if !ok {
			t = &tally{}
			tallies[rec.Symbol] = t
			order = append(order, rec.Symbol)
		}
		t.add(rec.NetProfit)
		volumes[rec.Symbol] = volumes[rec.Symbol].Add(decimal.NewFromFloat(rec.Volume))
	}

	out := make([]domain.SymbolStats, 0, len(order))
	for _, sym := range order {
		t := tallies[sym]
		out = append(out, domain.SymbolStats{
			Symbol:      sym,
			TradeCount:  t.count,
			TotalProfit: t.total.InexactFloat64(),
			TotalVolume: volumes[sym].InexactFloat64(),
			WinCount:    t.wins,
			LossCount:   t.losses,
			WinRate:     t.winRate(),
			AvgWin:      t.avgWin(),
			AvgLoss:     t.avgLoss(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TradeCount > out[j].TradeCount
	})
	return out
}

// Bounds returns the first and last exit day across records, or empty
// strings when no record has an exit time.
func (a *Aggregator) Bounds(records []domain.TradeRecord) domain.DataBounds {
	var lo, hi time.Time
	for _, rec := range records {
		if !rec.HasExit() {
			continue
		}
		t := *rec.ExitTime
		if lo.IsZero() || t.Before(lo) {
			lo = t
		}
		if hi.IsZero() || t.After(hi) {
			hi = t
		}
	}
	if lo.IsZero() {
		return domain.DataBounds{}
	}
	return domain.DataBounds{
		MinDate: lo.In(a.location).Format(dayKeyLayout),
		MaxDate: hi.In(a.location).Format(dayKeyLayout),
	}
}

// RecentWeekRange returns the Monday to Sunday week containing ref with
// each end clamped into bounds. Empty bounds yield a full range.
func (a *Aggregator) RecentWeekRange(ref time.Time, bounds domain.DataBounds) domain.DateRange {
	if bounds.MinDate == "" || bounds.MaxDate == "" {
		return domain.DateRange{FullRange: true}
	}
	minDay, err := a.parseDay(bounds.MinDate)
	if err != nil {
		return domain.DateRange{FullRange: true}
	}
	maxDay, err := a.parseDay(bounds.MaxDate)
	if err != nil {
		return domain.DateRange{FullRange: true}
	}

	start := a.calendar.With(ref.In(a.location)).BeginningOfWeek()
	end := a.calendar.With(start).EndOfWeek()
	if start.Before(minDay) {
		start = minDay
	}
	if end.After(maxDay) {
		end = maxDay
	}
	return domain.DateRange{
		StartDate: start.Format(dayKeyLayout),
		EndDate:   end.Format(dayKeyLayout),
	}
}

// Analyze filters records by r and derives every view from the result.
func (a *Aggregator) Analyze(records []domain.TradeRecord, r domain.DateRange) domain.Analysis {
	filtered := a.FilterByDateRange(records, r)
	return domain.Analysis{
		Range:   r,
		Bounds:  a.Bounds(records),
		Summary: a.Summarize(filtered),
		Daily:   a.AggregateDaily(filtered),
		Weekly:  a.AggregateWeekly(filtered),
		Monthly: a.AggregateMonthly(filtered),
		Symbols: a.AggregateBySymbol(filtered),
		Records: filtered,
	}
}
