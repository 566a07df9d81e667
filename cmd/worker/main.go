// worker runs authcore's background housekeeping: session sweep,
// verification-token garbage collection, and email outbox delivery.
// Grounded on the teacher's cmd/worker/main.go (hourly ticker, graceful
// shutdown on SIGTERM) and cmd/emailworker/main.go (FOR UPDATE SKIP LOCKED
// batch claim, per-item timeout, exponential backoff) — both loops are now
// expressed as internal/workerpool.Task entries on a single Scheduler
// instead of two separate processes.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/traderguard/authcore/internal/breaker"
	"github.com/traderguard/authcore/internal/config"
	"github.com/traderguard/authcore/internal/mailer"
	"github.com/traderguard/authcore/internal/session"
	"github.com/traderguard/authcore/internal/userstore"
	"github.com/traderguard/authcore/internal/workerpool"
)

const (
	sessionSweepAge  = 7 * 24 * time.Hour
	emailOutboxBatch = 25
	emailMaxRetries  = 4
	emailItemTimeout = 15 * time.Second
	emailBackoffBase = 5 * time.Minute
	pollInterval     = 30 * time.Second
	janitorInterval  = 1 * time.Hour
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load()

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("failed to load aws configuration", "error", err)
		os.Exit(1)
	}

	breakerSettings := make(map[breaker.Name]breaker.Settings, len(cfg.Breakers))
	for name, s := range cfg.Breakers {
		breakerSettings[breaker.Name(name)] = breaker.Settings{
			FailureRateThresholdPercent: s.FailureRateThresholdPercent,
			SlidingWindowSize:           uint32(s.SlidingWindowSize),
			MinimumCalls:                uint32(s.MinimumCalls),
			OpenDuration:                time.Duration(s.OpenDurationSeconds) * time.Second,
			HalfOpenPermittedCalls:      uint32(s.HalfOpenPermittedCalls),
			CallTimeout:                 s.CallTimeout,
		}
	}
	breakers := breaker.New(logger, breakerSettings)

	sessions := session.NewPgxAuthoritativeStore(pool)
	tokens := userstore.NewVerificationTokenStore(pool)
	sesProvider := mailer.NewSESProvider(ses.NewFromConfig(awsCfg), cfg.SESFromAddress)

	sched := workerpool.NewScheduler(logger)

	sched.Register(workerpool.Task{
		Name:           "session_sweep",
		Interval:       janitorInterval,
		RunImmediately: true,
		Run: func(ctx context.Context) error {
			n, err := sessions.DeleteExpiredOlderThan(ctx, sessionSweepAge)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("swept expired sessions", "deleted", n)
			}
			return nil
		},
	})

	sched.Register(workerpool.Task{
		Name:           "verification_token_gc",
		Interval:       janitorInterval,
		RunImmediately: true,
		Run: func(ctx context.Context) error {
			n, err := tokens.DeleteExpired(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("purged expired verification tokens", "deleted", n)
			}
			return nil
		},
	})

	outbox := &workerpool.BatchRunner[mailer.OutboxItem]{
		Fetch: func(ctx context.Context, batchSize int) ([]mailer.OutboxItem, error) {
			return mailer.ClaimBatch(ctx, pool, batchSize)
		},
		Process: func(ctx context.Context, item mailer.OutboxItem) error {
			_, err := breaker.Execute(ctx, breakers, breaker.Email, func(ctx context.Context) (string, error) {
				return sesProvider.Send(ctx, item.Payload)
			})
			if err != nil {
				markErr := mailer.MarkFailed(ctx, pool, item.ID, item.RetryCount+1, emailMaxRetries,
					func(attempt int) string { return workerpool.Backoff(attempt, emailBackoffBase).String() },
					err.Error())
				if markErr != nil {
					logger.Error("failed to record outbox failure", "id", item.ID, "error", markErr)
				}
				return err
			}
			return mailer.MarkSent(ctx, pool, item.ID)
		},
		BatchSize:   emailOutboxBatch,
		Concurrency: 5,
		ItemTimeout: emailItemTimeout,
		Logger:      logger,
	}

	sched.Register(workerpool.Task{
		Name:           "email_outbox",
		Interval:       pollInterval,
		RunImmediately: true,
		Run: func(ctx context.Context) error {
			processed, err := outbox.PollOnce(ctx)
			if err != nil {
				return err
			}
			if processed > 0 {
				logger.Info("processed email outbox batch", "count", processed)
			}
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started", "tasks", []string{"session_sweep", "verification_token_gc", "email_outbox"})
	sched.Run(ctx)
	logger.Info("worker shut down")
}
