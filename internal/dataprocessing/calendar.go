package dataprocessing

import (
	"time"

	"github.com/shopspring/decimal"

	"tradepulse/pkg/contracts/domain"
)

// Calendar lays daily profit out as a Monday-first month grid. month is
// YYYY-MM; when empty or invalid the latest month present in daily is used.
// Week and month totals only count days inside the month.
func (a *Aggregator) Calendar(daily []domain.DailyBucket, month string) domain.CalendarMonth {
	profits := make(map[string]float64, len(daily))
	latest := ""
	for _, d := range daily {
		profits[d.Key] = d.Profit
		if len(d.Key) >= len(monthKeyLayout) && d.Key[:len(monthKeyLayout)] > latest {
			latest = d.Key[:len(monthKeyLayout)]
		}
	}

	first, err := a.parseMonth(month)
	if err != nil {
		if first, err = a.parseMonth(latest); err != nil {
			return domain.CalendarMonth{Month: month, Weeks: []domain.CalendarWeek{}}
		}
	}

	cal := a.calendar.With(first)
	monthStart := cal.BeginningOfMonth()
	monthEnd := cal.EndOfMonth()
	day := a.calendar.With(monthStart).BeginningOfWeek()
	gridEnd := a.calendar.With(monthEnd).EndOfWeek()

	out := domain.CalendarMonth{Month: monthStart.Format(monthKeyLayout)}
	monthTotal := decimal.Zero
	for day.Before(gridEnd) {
		week := domain.CalendarWeek{Days: make([]domain.CalendarDay, 0, 7)}
		weekTotal := decimal.Zero
		for i := 0; i < 7; i++ {
			key := day.Format(dayKeyLayout)
			profit, ok := profits[key]
			inMonth := day.Month() == monthStart.Month() && day.Year() == monthStart.Year()
			week.Days = append(week.Days, domain.CalendarDay{
				Date:     key,
				Day:      day.Day(),
				InMonth:  inMonth,
				Profit:   profit,
				HasTrade: ok,
			})
			if inMonth && ok {
				weekTotal = weekTotal.Add(decimal.NewFromFloat(profit))
			}
			day = day.AddDate(0, 0, 1)
		}
		week.Total = weekTotal.InexactFloat64()
		monthTotal = monthTotal.Add(weekTotal)
		out.Weeks = append(out.Weeks, week)
	}
	out.Total = monthTotal.InexactFloat64()
	return out
}

func (a *Aggregator) parseMonth(s string) (time.Time, error) {
	return time.ParseInLocation(monthKeyLayout, s, a.location)
}
