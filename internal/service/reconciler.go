package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"farmrent/internal/apperr"
	"farmrent/internal/idmap"
	"farmrent/internal/models"
	"farmrent/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

// ConfirmResult is the confirmed booking and the order record written for it
type ConfirmResult struct {
	Booking *models.Booking     `json:"booking"`
	Order   *models.OrderRecord `json:"order"`
}

// Reconciler moves bookings to confirmed once their on-chain settlement is
// reported, and keeps the farmer's order log in step.
type Reconciler struct {
	bookings  BookingStore
	ledger    LedgerStore
	verifier  SettlementVerifier
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewReconciler creates a reconciler. A nil verifier accepts any well formed hash.
func NewReconciler(bookings BookingStore, ledger LedgerStore, verifier SettlementVerifier, publisher EventPublisher) *Reconciler {
	return &Reconciler{
		bookings:  bookings,
		ledger:    ledger,
		verifier:  verifier,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// Confirm records txHash as the settlement of a pending booking. Exactly one
// confirmation per booking succeeds; later ones fail with ErrAlreadyConfirmed
// and write nothing.
func (r *Reconciler) Confirm(ctx context.Context, bookingID, txHash, callerID string) (result *ConfirmResult, err error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Confirm", attribute.String("booking_id", bookingID))
	defer func() {
		if err != nil {
			util.ConfirmationsRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
		}
		util.EndSpan(span, err)
	}()

	txHash = strings.TrimSpace(txHash)
	if !txHashPattern.MatchString(txHash) {
		return nil, apperr.New(apperr.ErrValidation, "tx_hash must be 0x-prefixed hex")
	}

	booking, err := loadOwnedBooking(ctx, r.bookings, bookingID, callerID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending {
		return nil, models.ErrAlreadyConfirmed
	}

	if r.verifier != nil {
		index, err := idmap.Resolve(booking.OnChainID)
		if err != nil {
			return nil, err
		}
		if err := r.verifier.VerifySettlement(ctx, txHash, index); err != nil {
			r.logger.Warn("Settlement verification failed",
				zap.String("booking_id", booking.ID),
				zap.String("tx_hash", txHash),
				zap.Error(err))
			return nil, err
		}
	}

	confirmed, record, err := r.ledger.ConfirmBooking(ctx, booking.ID, txHash, r.now().UTC())
	if err != nil {
		return nil, err
	}

	util.BookingsConfirmedTotal.Inc()
	r.logger.Info("Booking confirmed",
		zap.String("booking_id", confirmed.ID),
		zap.String("tx_hash", txHash),
		zap.Int64("order_seq", record.Seq))

	event := &models.BookingConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeBookingConfirmed,
			Timestamp: time.Now(),
		},
		BookingID:   confirmed.ID,
		FarmerID:    confirmed.FarmerID,
		SellerID:    confirmed.SellerID,
		ListingName: confirmed.ListingName,
		OnChainID:   confirmed.OnChainID,
		Days:        confirmed.Days,
		Amount:      confirmed.Amount,
		TxHash:      txHash,
		OrderSeq:    record.Seq,
	}
	if err := r.publisher.PublishBookingConfirmed(ctx, event); err != nil {
		r.logger.Error("Failed to publish BookingConfirmed event", zap.Error(err))
	}

	return &ConfirmResult{Booking: confirmed, Order: record}, nil
}

// Orders returns a farmer's order log in sequence order
func (r *Reconciler) Orders(ctx context.Context, farmerID string) ([]models.OrderRecord, error) {
	return r.ledger.ListOrderRecords(ctx, farmerID)
}

func rejectReason(err error) string {
	if errors.Is(err, models.ErrAlreadyConfirmed) {
		return "already_confirmed"
	}
	if errors.Is(err, models.ErrTxAlreadyUsed) {
		return "tx_reused"
	}
	switch apperr.KindOf(err) {
	case apperr.ErrValidation:
		return "validation"
	case apperr.ErrNotFound:
		return "not_found"
	case apperr.ErrForbidden:
		return "forbidden"
	case apperr.ErrPreconditionFailed:
		return "not_mined"
	case apperr.ErrOnChainRejected:
		return "onchain_rejected"
	case apperr.ErrExternalUnavailable:
		return "chain_unavailable"
	case apperr.ErrConfiguration:
		return "configuration"
	}
	return "internal"
}
