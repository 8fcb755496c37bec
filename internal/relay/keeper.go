package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"subledger/internal/metrics"
	"subledger/internal/subscription"
)

// API is what the keeper needs from the ledger.
type API interface {
	Candidates(ctx context.Context, after string, limit int) ([]string, string, error)
	Check(ctx context.Context, account string) (bool, string, error)
	Perform(ctx context.Context, performData string) (subscription.Record, error)
}

// Result counts what one pass did with its candidates.
type Result struct {
	Candidates int
	Renewed    int
	Skipped    int
	Failed     int
}

type Keeper struct {
	api       API
	batchSize int
	mu        sync.Mutex
}

func NewKeeper(api API, batchSize int) *Keeper {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Keeper{api: api, batchSize: batchSize}
}

// RunOnce walks every candidate page by page. A candidate that turns out not
// to be eligible, at check or at perform, is skipped; any other per-candidate
// failure is counted and the pass goes on.
func (k *Keeper) RunOnce(ctx context.Context) (Result, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	var (
		res    Result
		cursor string
	)
	for {
		accounts, next, err := k.api.Candidates(ctx, cursor, k.batchSize)
		if err != nil {
			return res, fmt.Errorf("list candidates after %q: %w", cursor, err)
		}

		res.Candidates += len(accounts)
		for _, account := range accounts {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			outcome := k.process(ctx, account)
			metrics.RelayCandidatesTotal.WithLabelValues(outcome).Inc()
			switch outcome {
			case "renewed":
				res.Renewed++
			case "skipped":
				res.Skipped++
			default:
				res.Failed++
			}
		}

		if next == "" || next == cursor {
			return res, nil
		}
		cursor = next
	}
}

func (k *Keeper) process(ctx context.Context, account string) string {
	logger := log.With().Str("account", account).Logger()

	eligible, data, err := k.api.Check(ctx, account)
	if err != nil {
		logger.Warn().Err(err).Msg("eligibility check failed")
		return "failed"
	}
	if !eligible {
		return "skipped"
	}

	rec, err := k.api.Perform(ctx, data)
	switch {
	case err == nil:
		logger.Info().Int64("expires_at", rec.ExpiresAt).Msg("renewal performed")
		return "renewed"
	case errors.Is(err, subscription.ErrNotEligible):
		logger.Debug().Err(err).Msg("candidate no longer eligible")
		return "skipped"
	default:
		logger.Warn().Err(err).Msg("perform failed")
		return "failed"
	}
}

// Start runs RunOnce on a cron schedule until ctx is done. Overlapping runs
// are skipped. The returned channel closes once the scheduler has stopped.
func (k *Keeper) Start(ctx context.Context, schedule string) (<-chan struct{}, error) {
	logger := cronLogger{log.Logger}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	_, err := c.AddFunc(schedule, func() {
		res, err := k.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("relay pass failed")
			return
		}
		log.Info().
			Int("candidates", res.Candidates).
			Int("renewed", res.Renewed).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Msg("relay pass finished")
	})
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}

	c.Start()
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		close(done)
	}()
	return done, nil
}

// cronLogger routes scheduler logs through zerolog.
type cronLogger struct {
	zl zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.zl.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.zl.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
