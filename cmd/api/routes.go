package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"

	"github.com/taskcoin/backend/internal/auth"
	"github.com/taskcoin/backend/internal/config"
	"github.com/taskcoin/backend/internal/handlers"
	"github.com/taskcoin/backend/internal/ledger"
	"github.com/taskcoin/backend/internal/middleware"
	"github.com/taskcoin/backend/internal/models"
	"github.com/taskcoin/backend/internal/notify"
	"github.com/taskcoin/backend/internal/payments"
	"github.com/taskcoin/backend/internal/repository"
	"github.com/taskcoin/backend/internal/router"
	"github.com/taskcoin/backend/internal/services"
	"github.com/taskcoin/backend/internal/txn"
)

// buildHandler wires repositories, services and handlers into the API handler.
// Background work it starts stops when ctx is done.
func buildHandler(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, riverClient *river.Client[pgx.Tx], logger *slog.Logger) (http.Handler, error) {
	accountRepo := repository.NewAccountRepo(pool)
	taskRepo := repository.NewTaskRepo(pool)
	submissionRepo := repository.NewSubmissionRepo(pool)
	withdrawalRepo := repository.NewWithdrawalRepo(pool)
	paymentRepo := repository.NewPaymentRepo(pool)

	coordinator := txn.NewCoordinator(pool, cfg.TxMaxAttempts, logger)
	l := ledger.New(accountRepo, repository.NewLedgerRepo(pool))
	notifier := notify.NewDispatcher(riverClient, logger)
	gateway := payments.NewClient(cfg.StripeAPIURL, cfg.StripeSecretKey, cfg.GatewayTimeout)

	validator, err := services.NewValidator(services.Schemas)
	if err != nil {
		return nil, err
	}
	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	escrow := services.NewEscrowService(coordinator, l, taskRepo, logger)
	reviews := services.NewSubmissionService(coordinator, l, taskRepo, submissionRepo, notifier, logger)
	withdrawals := services.NewWithdrawalService(coordinator, l, withdrawalRepo, notifier, logger)
	topups := services.NewTopupService(coordinator, l, paymentRepo, gateway, logger)
	accounts := services.NewAccountService(coordinator, l, accountRepo, map[models.Role]int64{
		models.RoleWorker: cfg.SignupBonusWorker,
		models.RoleBuyer:  cfg.SignupBonusBuyer,
	}, logger)

	limiter := middleware.NewRateLimiter(cfg.PaymentRateLimit, cfg.PaymentRateBurst, logger)
	limiter.StartPruning(time.Minute, ctx.Done())

	return router.New(router.Handlers{
		Tasks:       handlers.NewTaskHandler(escrow, validator, logger),
		Submissions: handlers.NewSubmissionHandler(reviews, validator, logger),
		Withdrawals: handlers.NewWithdrawalHandler(withdrawals, validator, logger),
		Payments:    handlers.NewPaymentHandler(topups, validator, logger),
		Accounts:    handlers.NewAccountHandler(accounts, logger),
	}, router.Options{
		Authenticate: middleware.Authenticate(verifier, accounts, logger),
		PaymentLimit: limiter.Handler,
		Health: func(w http.ResponseWriter, r *http.Request) {
			if err := pool.Ping(r.Context()); err != nil {
				http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		},
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	}), nil
}
