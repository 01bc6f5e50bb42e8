package reporting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mamadbah2/medistock/internal/domain/models"
)

const (
	dateLayout         = "2006-01-02"
	incomeSeriesMonths = 6
	recentLimit        = 10
)

// Store runs the bill aggregations and keeps daily reports.
type Store interface {
	CountPatients(ctx context.Context) (int64, error)
	IncomeBetween(ctx context.Context, from, to time.Time) (models.IncomeSummary, error)
	MonthlyIncomeSince(ctx context.Context, since time.Time, loc *time.Location) ([]models.MonthlyIncome, error)
	RecentTransactions(ctx context.Context, limit int64) ([]models.RecentTransaction, error)
	SaveDailyReport(ctx context.Context, report models.DailyReport) error
}

// StockCounter counts medicines matching the stock predicates.
type StockCounter interface {
	CountLowStock(ctx context.Context, threshold int) (int64, error)
	CountExpiringBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// ReportMirror receives a copy of every published daily report.
type ReportMirror interface {
	AppendDailyReport(ctx context.Context, report models.DailyReport) error
}

// Service computes dashboard statistics and the daily report.
type Service struct {
	store  Store
	stock  StockCounter
	mirror ReportMirror
	policy models.StockPolicy
	loc    *time.Location
	logger *zap.Logger
}

// NewService wires a new reporting service instance. mirror may be nil.
func NewService(store Store, stock StockCounter, mirror ReportMirror, policy models.StockPolicy, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:  store,
		stock:  stock,
		mirror: mirror,
		policy: policy,
		loc:    loc,
		logger: logger,
	}
}

// Stats gathers the dashboard figures. The queries are independent and run concurrently.
func (s *Service) Stats(ctx context.Context, now time.Time) (*models.DashboardStats, error) {
	now = now.In(s.loc)
	dayStart := startOfDay(now)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	seriesStart := monthStart.AddDate(0, -(incomeSeriesMonths - 1), 0)
	expiryFrom, expiryTo := s.policy.ExpiryWindow(now)

	stats := &models.DashboardStats{}
	var (
		today, month models.IncomeSummary
		series       []models.MonthlyIncome
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalPatients, err = s.store.CountPatients(gctx)
		return err
	})
	g.Go(func() (err error) {
		today, err = s.store.IncomeBetween(gctx, dayStart, dayStart.AddDate(0, 0, 1))
		return err
	})
	g.Go(func() (err error) {
		month, err = s.store.IncomeBetween(gctx, monthStart, monthStart.AddDate(0, 1, 0))
		return err
	})
	g.Go(func() (err error) {
		stats.LowStock, err = s.stock.CountLowStock(gctx, s.policy.LowStockThreshold)
		return err
	})
	g.Go(func() (err error) {
		stats.ExpiringStock, err = s.stock.CountExpiringBetween(gctx, expiryFrom, expiryTo)
		return err
	})
	g.Go(func() (err error) {
		series, err = s.store.MonthlyIncomeSince(gctx, seriesStart, s.loc)
		return err
	})
	g.Go(func() (err error) {
		stats.RecentTransactions, err = s.store.RecentTransactions(gctx, recentLimit)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect dashboard stats: %w", err)
	}

	stats.TodayIncome = today.Total
	stats.MonthlyIncome = month.Total
	stats.MonthlyIncomeData = fillMonths(series, seriesStart, incomeSeriesMonths)
	return stats, nil
}

// IncomeBetween sums bills from the start of startDate through the end of endDate.
func (s *Service) IncomeBetween(ctx context.Context, startDate, endDate time.Time) (models.IncomeSummary, error) {
	from := startOfDay(startDate.In(s.loc))
	to := startOfDay(endDate.In(s.loc)).AddDate(0, 0, 1)
	if !to.After(from) {
		return models.IncomeSummary{}, models.NewValidationError("endDate must not be before startDate")
	}

	summary, err := s.store.IncomeBetween(ctx, from, to)
	if err != nil {
		return models.IncomeSummary{}, fmt.Errorf("income between %s and %s: %w", from.Format(dateLayout), endDate.Format(dateLayout), err)
	}
	return summary, nil
}

// BuildDailyReport computes the snapshot for the day containing now.
func (s *Service) BuildDailyReport(ctx context.Context, now time.Time) (models.DailyReport, error) {
	now = now.In(s.loc)
	dayStart := startOfDay(now)
	expiryFrom, expiryTo := s.policy.ExpiryWindow(now)

	report := models.DailyReport{Date: dayStart, CreatedAt: now.UTC()}
	var income models.IncomeSummary

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		report.TotalPatients, err = s.store.CountPatients(gctx)
		return err
	})
	g.Go(func() (err error) {
		income, err = s.store.IncomeBetween(gctx, dayStart, dayStart.AddDate(0, 0, 1))
		return err
	})
	g.Go(func() (err error) {
		report.LowStockCount, err = s.stock.CountLowStock(gctx, s.policy.LowStockThreshold)
		return err
	})
	g.Go(func() (err error) {
		report.ExpiringCount, err = s.stock.CountExpiringBetween(gctx, expiryFrom, expiryTo)
		return err
	})

	if err := g.Wait(); err != nil {
		return models.DailyReport{}, fmt.Errorf("build daily report %s: %w", dayStart.Format(dateLayout), err)
	}

	report.Income = income.Total
	report.BillsIssued = income.Bills
	return report, nil
}

// PublishDailyReport builds, stores and mirrors the daily report. A mirror failure is logged;
// the stored report is authoritative.
func (s *Service) PublishDailyReport(ctx context.Context, now time.Time) (models.DailyReport, error) {
	report, err := s.BuildDailyReport(ctx, now)
	if err != nil {
		return models.DailyReport{}, err
	}

	if err := s.store.SaveDailyReport(ctx, report); err != nil {
		return models.DailyReport{}, fmt.Errorf("save daily report: %w", err)
	}

	if s.mirror != nil {
		if err := s.mirror.AppendDailyReport(ctx, report); err != nil {
			s.logger.Warn("failed to mirror daily report", zap.String("date", report.Date.Format(dateLayout)), zap.Error(err))
		}
	}

	s.logger.Info("daily report published",
		zap.String("date", report.Date.Format(dateLayout)),
		zap.Int64("bills", report.BillsIssued),
		zap.String("income", report.Income.StringFixed(2)))
	return report, nil
}

// fillMonths returns exactly n consecutive months from start, with zero income where no bill was issued.
func fillMonths(series []models.MonthlyIncome, start time.Time, n int) []models.MonthlyIncome {
	type key struct{ year, month int }
	byMonth := make(map[key]models.MonthlyIncome, len(series))
	for _, m := range series {
		byMonth[key{m.Year, m.Number}] = m
	}

	out := make([]models.MonthlyIncome, 0, n)
	for i := 0; i < n; i++ {
		t := start.AddDate(0, i, 0)
		k := key{t.Year(), int(t.Month())}
		m, ok := byMonth[k]
		if !ok {
			m = models.MonthlyIncome{Year: k.year, Number: k.month}
		}
		m.Month = t.Month().String()[:3]
		out = append(out, m)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
