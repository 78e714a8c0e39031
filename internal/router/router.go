package router

import (
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/taskcoin/backend/internal/handlers"
	"github.com/taskcoin/backend/internal/metrics"
	"github.com/taskcoin/backend/internal/middleware"
	"github.com/taskcoin/backend/internal/models"
)

type Middleware func(http.Handler) http.Handler

// Handlers are the API endpoint groups mounted under /api/v1.
type Handlers struct {
	Tasks       *handlers.TaskHandler
	Submissions *handlers.SubmissionHandler
	Withdrawals *handlers.WithdrawalHandler
	Payments    *handlers.PaymentHandler
	Accounts    *handlers.AccountHandler
}

type Options struct {
	// Authenticate resolves the caller; every /api/v1 route runs behind it.
	Authenticate Middleware
	// PaymentLimit throttles the payment endpoints per principal. Nil disables it.
	PaymentLimit Middleware
	// Health answers GET /healthz.
	Health      http.HandlerFunc
	CORSOrigins []string
	Logger      *slog.Logger
}

// New returns the full server handler: API routes, /healthz and /metrics,
// wrapped in recovery, request logging, metrics and CORS.
func New(h Handlers, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.PaymentLimit
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	mux := http.NewServeMux()
	base := "/api/v1"

	as := func(fn http.HandlerFunc, roles ...models.Role) http.Handler {
		return opts.Authenticate(middleware.RequireRole(roles...)(fn))
	}
	buyer := models.RoleBuyer
	worker := models.RoleWorker
	admin := models.RoleAdmin

	mux.Handle("GET "+base+"/me", as(h.Accounts.Me, worker, buyer, admin))

	mux.Handle("GET "+base+"/tasks/{id}", as(h.Tasks.Get, worker, buyer, admin))
	mux.Handle("POST "+base+"/tasks", as(h.Tasks.Create, buyer))
	mux.Handle("PATCH "+base+"/tasks/{id}", as(h.Tasks.Update, buyer))
	mux.Handle("DELETE "+base+"/tasks/{id}", as(h.Tasks.Delete, buyer))
	mux.Handle("DELETE "+base+"/admin/tasks/{id}", as(h.Tasks.AdminDelete, admin))

	mux.Handle("GET "+base+"/submissions/{id}", as(h.Submissions.Get, worker, buyer))
	mux.Handle("POST "+base+"/submissions", as(h.Submissions.Submit, worker))
	mux.Handle("POST "+base+"/submissions/{id}/approve", as(h.Submissions.Approve, buyer))
	mux.Handle("POST "+base+"/submissions/{id}/reject", as(h.Submissions.Reject, buyer))

	mux.Handle("GET "+base+"/withdrawals/{id}", as(h.Withdrawals.Get, worker))
	mux.Handle("POST "+base+"/withdrawals", as(h.Withdrawals.Request, worker))
	mux.Handle("POST "+base+"/admin/withdrawals/{id}/approve", as(h.Withdrawals.Approve, admin))
	mux.Handle("POST "+base+"/admin/withdrawals/{id}/reject", as(h.Withdrawals.Reject, admin))

	// The limiter runs after Authenticate so buckets are keyed by principal.
	payments := func(fn http.HandlerFunc) http.Handler {
		return opts.Authenticate(middleware.RequireRole(buyer)(limit(fn)))
	}
	mux.Handle("POST "+base+"/payments/intents", payments(h.Payments.CreateIntent))
	mux.Handle("POST "+base+"/payments/confirm", payments(h.Payments.Confirm))

	if opts.Health != nil {
		mux.HandleFunc("GET /healthz", opts.Health)
	}
	mux.Handle("GET /metrics", metrics.Handler())

	var handler http.Handler = mux
	handler = metrics.InstrumentHandler(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recover(logger)(handler)

	return cors.New(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(handler)
}
