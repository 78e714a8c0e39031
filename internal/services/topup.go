package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/taskcoin/backend/internal/ledger"
	"github.com/taskcoin/backend/internal/metrics"
	"github.com/taskcoin/backend/internal/models"
	"github.com/taskcoin/backend/internal/payments"
)

// Metadata keys attached to every intent this service creates.
const (
	metaBuyerID = "buyer_id"
	metaCoins   = "coins"
)

// PaymentGateway creates and inspects payment intents. *payments.Client implements it.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, metadata map[string]string) (*payments.Intent, error)
	RetrieveIntent(ctx context.Context, id string) (*payments.Intent, error)
}

// PaymentIntent is what the client needs to complete a card payment.
type PaymentIntent struct {
	IntentID     string          `json:"payment_intent_id"`
	ClientSecret string          `json:"client_secret"`
	Payment      *models.Payment `json:"payment"`
}

// ConfirmResult is the outcome of Confirm. Replayed is true when the payment
// had already been credited and nothing changed.
type ConfirmResult struct {
	Payment    *models.Payment `json:"payment"`
	NewBalance int64           `json:"new_balance"`
	Replayed   bool            `json:"replayed"`
}

// TopupService turns a succeeded gateway payment into exactly one coin credit,
// keyed by the gateway's intent id.
type TopupService struct {
	Tx       TxRunner
	Ledger   Ledger
	Payments PaymentStore
	Gateway  PaymentGateway
	Logger   *slog.Logger
}

func NewTopupService(tx TxRunner, l Ledger, ps PaymentStore, gw PaymentGateway, logger *slog.Logger) *TopupService {
	return &TopupService{Tx: tx, Ledger: l, Payments: ps, Gateway: gw, Logger: orDefault(logger)}
}

// CreateIntent opens a gateway intent for amount dollars and records a pending payment.
func (s *TopupService) CreateIntent(ctx context.Context, buyerID uuid.UUID, amount decimal.Decimal, coins int64) (*PaymentIntent, error) {
	if !amount.IsPositive() || coins <= 0 {
		return nil, fmt.Errorf("amount and coins must be positive: %w", models.ErrValidation)
	}
	intent, err := s.Gateway.CreateIntent(ctx, amount, map[string]string{
		metaBuyerID: buyerID.String(),
		metaCoins:   strconv.FormatInt(coins, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("create intent: %w: %w", models.ErrExternalService, err)
	}

	p := &models.Payment{
		ID:         uuid.New(),
		BuyerID:    buyerID,
		Amount:     amount.Round(2),
		Coins:      coins,
		ExternalID: intent.ID,
		Status:     models.PaymentStatusPending,
	}
	err = s.Tx.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return s.Payments.CreateTx(ctx, tx, p)
	})
	if err != nil {
		return nil, fmt.Errorf("record pending payment: %w", err)
	}

	s.Logger.Info("payment intent created", "payment_id", p.ID, "external_id", intent.ID, "buyer_id", buyerID)
	return &PaymentIntent{IntentID: intent.ID, ClientSecret: intent.ClientSecret, Payment: p}, nil
}

// Confirm verifies the intent with the gateway and credits the buyer once.
// Calling it again for a completed payment returns the stored payment and the
// current balance without crediting.
func (s *TopupService) Confirm(ctx context.Context, buyerID uuid.UUID, externalID string, amount decimal.Decimal, coins int64) (*ConfirmResult, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" || coins <= 0 || amount.IsNegative() {
		return nil, fmt.Errorf("payment id, positive coins and a non-negative amount are required: %w", models.ErrValidation)
	}

	intent, err := s.Gateway.RetrieveIntent(ctx, externalID)
	if err != nil {
		if errors.Is(err, payments.ErrIntentNotFound) {
			return nil, fmt.Errorf("payment %s: %w", externalID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("verify payment %s: %w: %w", externalID, models.ErrExternalService, err)
	}

	if intent.Status != payments.StatusSucceeded {
		if intent.Status == payments.StatusCanceled {
			s.markFailed(ctx, buyerID, externalID)
		}
		return nil, fmt.Errorf("payment %s is %s: %w", externalID, intent.Status, models.ErrPaymentNotCompleted)
	}
	if owner, ok := intent.Metadata[metaBuyerID]; ok && owner != buyerID.String() {
		return nil, fmt.Errorf("payment %s was made by another buyer: %w", externalID, models.ErrUnauthorized)
	}
	// Mismatches only block a first credit; a completed payment replays as is.
	var mismatch error
	if paid, ok := intent.Metadata[metaCoins]; ok && paid != strconv.FormatInt(coins, 10) {
		mismatch = fmt.Errorf("payment %s bought %s coins, not %d: %w", externalID, paid, coins, models.ErrValidation)
	} else if !amount.IsZero() && !amount.Equal(intent.Amount) {
		mismatch = fmt.Errorf("payment %s charged %s, not %s: %w", externalID, intent.Amount, amount, models.ErrValidation)
	}

	var res ConfirmResult
	err = s.Tx.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		res = ConfirmResult{}
		p, err := s.Payments.GetByExternalIDForUpdate(ctx, tx, externalID)
		switch {
		case errors.Is(err, models.ErrNotFound):
			if mismatch != nil {
				return mismatch
			}
			p = &models.Payment{
				ID:         uuid.New(),
				BuyerID:    buyerID,
				Amount:     intent.Amount,
				Coins:      coins,
				ExternalID: externalID,
				Status:     models.PaymentStatusCompleted,
			}
			if err := s.Payments.CreateTx(ctx, tx, p); err != nil {
				return fmt.Errorf("insert payment: %w", err)
			}
		case err != nil:
			return fmt.Errorf("lock payment: %w", err)
		default:
			if p.BuyerID != buyerID {
				return fmt.Errorf("payment %s belongs to another buyer: %w", externalID, models.ErrUnauthorized)
			}
			switch p.Status {
			case models.PaymentStatusCompleted:
				res.Payment = p
				res.Replayed = true
				res.NewBalance, err = s.Ledger.Balance(ctx, tx, buyerID)
				return err
			case models.PaymentStatusFailed:
				return fmt.Errorf("payment %s was marked failed: %w", externalID, models.ErrInvalidState)
			}
			if mismatch != nil {
				return mismatch
			}
			if p.Coins != coins {
				return fmt.Errorf("payment %s was opened for %d coins, not %d: %w", externalID, p.Coins, coins, models.ErrValidation)
			}
			if err := s.Payments.UpdateStatusTx(ctx, tx, p.ID, models.PaymentStatusCompleted); err != nil {
				return fmt.Errorf("complete payment: %w", err)
			}
			p.Status = models.PaymentStatusCompleted
		}

		res.Payment = p
		res.NewBalance, err = s.Ledger.Credit(ctx, tx, buyerID, p.Coins, ledger.Ref{EntryType: models.EntryTopup, PaymentID: &p.ID})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}

	if res.Replayed {
		s.Logger.Info("payment confirmation replayed", "payment_id", res.Payment.ID, "external_id", externalID)
		return &res, nil
	}
	metrics.RecordTransition("payment", models.PaymentStatusCompleted)
	metrics.RecordCoins(models.EntryTopup, res.Payment.Coins)
	s.Logger.Info("payment completed", "payment_id", res.Payment.ID, "external_id", externalID, "coins", res.Payment.Coins)
	return &res, nil
}

// markFailed closes a pending payment whose intent was canceled. Errors are
// logged; the caller already reports PaymentNotCompleted.
func (s *TopupService) markFailed(ctx context.Context, buyerID uuid.UUID, externalID string) {
	var changed bool
	err := s.Tx.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		p, err := s.Payments.GetByExternalIDForUpdate(ctx, tx, externalID)
		if err != nil {
			return err
		}
		if p.BuyerID != buyerID || p.Status != models.PaymentStatusPending {
			return nil
		}
		changed = true
		return s.Payments.UpdateStatusTx(ctx, tx, p.ID, models.PaymentStatusFailed)
	})
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		s.Logger.Warn("could not mark payment failed", "external_id", externalID, "error", err)
	case changed:
		metrics.RecordTransition("payment", models.PaymentStatusFailed)
	}
}
