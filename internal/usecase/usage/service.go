// Package usage reports embedding token consumption against the configured
// budget.
package usage

import (
	"context"
	"time"
)

// Period selects the reporting window.
type Period string

const (
	// PeriodDay reports consumption for the current UTC day.
	PeriodDay Period = "day"
	// PeriodMonth reports consumption for the current UTC month.
	PeriodMonth Period = "month"
)

// Report is a snapshot of token consumption for one period.
type Report struct {
	Period      Period
	PeriodStart int64 // unix millis
	PeriodEnd   int64 // unix millis
	Limit       int64 // 0 means unlimited
	Used        int64
	Remaining   int64 // -1 means unlimited
	Exhausted   bool
}

// Service handles usage reporting.
type Service struct {
	br  BudgetReader
	now func() time.Time
}

// New creates a Service. br can be nil (unlimited mode, zero usage).
func New(br BudgetReader) *Service {
	return &Service{br: br, now: time.Now}
}

// GetReport builds a usage report for the given period. Unknown periods
// default to the monthly window.
func (s *Service) GetReport(_ context.Context, period Period) Report {
	now := s.now().UTC()

	var start, end time.Time
	var limit, used, remaining int64

	switch period {
	case PeriodDay:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.Add(24 * time.Hour)
		if s.br != nil {
			limit = s.br.DailyLimit()
			used = s.br.DailyUsed()
			remaining = s.br.RemainingDaily()
		}
	default:
		period = PeriodMonth
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
		if s.br != nil {
			limit = s.br.MonthlyLimit()
			used = s.br.MonthlyUsed()
			remaining = s.br.RemainingMonthly()
		}
	}

	return Report{
		Period:      period,
		PeriodStart: start.UnixMilli(),
		PeriodEnd:   end.UnixMilli(),
		Limit:       limit,
		Used:        used,
		Remaining:   remaining,
		Exhausted:   limit > 0 && remaining <= 0,
	}
}
