package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"cseflow/config"
	"cseflow/internal/archive"
	"cseflow/internal/cse"
	"cseflow/internal/metrics"
	"cseflow/internal/mirror"
	"cseflow/internal/normalize"
	"cseflow/internal/store"
	"cseflow/logger"
)

// Options carries the collaborators a Scheduler drives each cycle. Legacy,
// Archive and Mirror may be nil when the corresponding output is disabled.
type Options struct {
	Fetcher   cse.Fetcher
	Series    *store.TimeSeries
	Reference *store.Reference
	Legacy    *store.Legacy
	Archive   *archive.CompanyArchive
	Mirror    *mirror.S3Mirror
	Reporter  *metrics.CycleReporter
	Log       *logger.Log
	Now       func() time.Time
}

// Scheduler runs the market-hours polling loop. Outside the trading window
// it sleeps on a long interval; inside it runs one capture cycle per poll
// interval, isolating per-source failures so one bad endpoint never stops
// the rest of the cycle.
type Scheduler struct {
	cfg       *config.Config
	fetcher   cse.Fetcher
	series    *store.TimeSeries
	reference *store.Reference
	legacy    *store.Legacy
	archive   *archive.CompanyArchive
	mirror    *mirror.S3Mirror
	reporter  *metrics.CycleReporter
	limiter   *rate.Limiter
	log       *logger.Entry
	now       func() time.Time

	// refreshedToday guards the daily symbol reference rebuild. It is set
	// after a successful rebuild and cleared whenever the market is closed,
	// so each trading day triggers at most one rebuild.
	refreshedToday bool
}

func New(cfg *config.Config, opts Options) *Scheduler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logger.GetLogger()
	}
	return &Scheduler{
		cfg:       cfg,
		fetcher:   opts.Fetcher,
		series:    opts.Series,
		reference: opts.Reference,
		legacy:    opts.Legacy,
		archive:   opts.Archive,
		mirror:    opts.Mirror,
		reporter:  opts.Reporter,
		limiter:   rate.NewLimiter(rate.Every(cfg.Polling.RequestDelay), 1),
		log:       opts.Log.WithComponent("scheduler"),
		now:       now,
	}
}

// Run drives the polling loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.WithFields(logger.Fields{
		"interval":        s.cfg.Polling.Interval.String(),
		"closed_interval": s.cfg.Polling.ClosedInterval.String(),
	}).Info("Scheduler started")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		now := s.now().In(SLST)
		if !marketOpen(s.cfg.Market, now) {
			if s.refreshedToday {
				s.log.Debug("Market closed, clearing daily refresh flag")
			}
			s.refreshedToday = false
			if !sleepCtx(ctx, s.cfg.Polling.ClosedInterval) {
				return ctx.Err()
			}
			continue
		}

		start := s.now()
		if err := s.safeCycle(ctx); err != nil {
			s.log.WithError(err).Error("Cycle aborted, backing off")
			if !sleepCtx(ctx, s.cfg.Polling.RetryDelay) {
				return ctx.Err()
			}
			continue
		}

		// Keep the cycle cadence steady regardless of how long the
		// capture itself took.
		if remaining := s.cfg.Polling.Interval - s.now().Sub(start); remaining > 0 {
			if !sleepCtx(ctx, remaining) {
				return ctx.Err()
			}
		}
	}
}

// safeCycle converts a panicking cycle into an error so a single malformed
// payload cannot take the whole process down.
func (s *Scheduler) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v\n%s", r, debug.Stack())
		}
	}()
	s.runCycle(ctx)
	return nil
}

func (s *Scheduler) runCycle(ctx context.Context) {
	now := s.now().In(SLST)
	result := newCycleResult(now)
	log := s.log.WithFields(logger.Fields{"cycle_id": result.ID})

	payloads := make(map[string]interface{})
	for _, source := range s.cfg.Source.Endpoints {
		if ctx.Err() != nil {
			return
		}
		payload, err := s.fetcher.Fetch(ctx, source)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"source": source}).Warn("Source fetch failed")
			result.fail(source)
			continue
		}
		result.succeed(source)
		payloads[source] = payload

		path, err := s.series.Save(source, payload, now)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"source": source}).Error("Artifact write failed")
			continue
		}
		if path != "" && s.mirror != nil {
			if err := s.mirror.Upload(ctx, s.series.RelPath(path), path); err != nil {
				log.WithError(err).WithFields(logger.Fields{"source": source}).Warn("S3 mirror upload failed")
			}
		}
	}

	s.maybeRefreshReference(ctx, now, payloads, log)

	var companies []normalize.CompanyRecord
	if s.legacy != nil || s.archive != nil {
		gainers := normalize.MoverSet(payloads[cse.EndpointTopGainers], "reqTopGainers")
		losers := normalize.MoverSet(payloads[cse.EndpointTopLosers], "reqTopLooses")
		companies = s.collectCompanies(ctx, payloads, gainers, losers, log)
		s.writeAggregates(now, payloads, companies, gainers, losers, log)
	}

	duration := s.now().Sub(result.StartedAt)
	log.WithFields(logger.Fields{
		"succeeded": len(result.Succeeded()),
		"failed":    len(result.Failed()),
		"companies": len(companies),
		"duration":  duration.String(),
	}).Info("Cycle complete")

	if s.reporter != nil {
		s.reporter.Report(ctx, metrics.CycleStats{
			SourcesSucceeded:  len(result.Succeeded()),
			SourcesFailed:     len(result.Failed()),
			CompaniesCaptured: len(companies),
			Duration:          duration,
		})
	}
}

// maybeRefreshReference rebuilds the symbol reference table once per trading
// day, inside the configured window. The rebuild needs both the price list
// and the sector list from the current cycle; if either fetch failed the
// rebuild is deferred to the next cycle still inside the window.
func (s *Scheduler) maybeRefreshReference(ctx context.Context, now time.Time, payloads map[string]interface{}, log *logger.Entry) {
	if s.refreshedToday || !inRefreshWindow(s.cfg.Refresh, now) {
		return
	}
	price, okPrice := payloads[cse.EndpointSharePrices]
	sectors, okSectors := payloads[cse.EndpointSectors]
	if !okPrice || !okSectors {
		log.Warn("Reference refresh deferred, required sources missing this cycle")
		return
	}

	symbols, err := s.reference.Build(price, sectors, now)
	if err != nil {
		log.WithError(err).Error("Reference refresh failed")
		return
	}
	s.refreshedToday = true
	log.WithFields(logger.Fields{"symbols": len(symbols)}).Info("Symbol reference refreshed")

	if s.mirror != nil {
		path := s.reference.Path()
		if err := s.mirror.Upload(ctx, "reference/symbol_reference.json", path); err != nil {
			log.WithError(err).Warn("S3 mirror upload failed for symbol reference")
		}
	}
}

// collectCompanies fetches per-symbol detail for every symbol in the current
// price list, pacing requests with the shared limiter. Individual symbol
// failures are logged and skipped.
func (s *Scheduler) collectCompanies(ctx context.Context, payloads map[string]interface{}, gainers, losers map[string]bool, log *logger.Entry) []normalize.CompanyRecord {
	price, ok := payloads[cse.EndpointSharePrices]
	if !ok {
		return nil
	}

	seen := make(map[string]bool)
	var records []normalize.CompanyRecord
	for _, symbol := range normalize.ActiveSymbols(price) {
		if seen[symbol] {
			continue
		}
		seen[symbol] = true

		if err := s.limiter.Wait(ctx); err != nil {
			return records
		}
		info, err := s.fetcher.CompanyInfo(ctx, symbol)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Warn("Company info fetch failed")
			continue
		}
		if rec, ok := normalize.CompanyFromInfo(info, gainers, losers); ok {
			records = append(records, rec)
		}
	}
	return records
}

func (s *Scheduler) writeAggregates(now time.Time, payloads map[string]interface{}, companies []normalize.CompanyRecord, gainers, losers map[string]bool, log *logger.Entry) {
	summary := normalize.MarketSummary(payloads[cse.EndpointMarketSummary])

	if s.legacy != nil {
		if err := s.legacy.AppendRows(now, summary, companies); err != nil {
			log.WithError(err).Error("Legacy CSV append failed")
		}
		snapshot := store.LatestSnapshot{
			Timestamp:     now.Format(time.RFC3339),
			MarketSummary: summary,
			Gainers:       setToSlice(gainers),
			Losers:        setToSlice(losers),
			Sectors:       payloads[cse.EndpointSectors],
			Companies:     companies,
		}
		if err := s.legacy.WriteLatest(snapshot); err != nil {
			log.WithError(err).Error("Latest snapshot write failed")
		}
	}

	if s.archive != nil {
		if err := s.archive.WriteCycle(companies, now); err != nil {
			log.WithError(err).Error("Parquet archive write failed")
		}
	}
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// sleepCtx sleeps for d unless ctx is cancelled first. It returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
