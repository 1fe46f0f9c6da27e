package service

import (
	"context"

	"farmrent/internal/apperr"
	"farmrent/internal/idmap"
	"farmrent/internal/models"
	"farmrent/internal/oracle"
	"farmrent/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PaymentConfig selects the currencies and rounding used for quotes
type PaymentConfig struct {
	Fiat      string
	Asset     string
	Precision int
}

// PaymentService prepares everything a farmer's wallet needs to settle a
// booking on the registry. It never changes off-chain state.
type PaymentService struct {
	bookings BookingStore
	oracle   RateOracle
	registry RegistryReader
	cfg      PaymentConfig
	logger   *zap.Logger
}

// NewPaymentService creates a new payment service. registry may be nil when
// no chain is configured; Prepare then fails with a configuration error.
func NewPaymentService(bookings BookingStore, rates RateOracle, registry RegistryReader, cfg PaymentConfig) *PaymentService {
	return &PaymentService{
		bookings: bookings,
		oracle:   rates,
		registry: registry,
		cfg:      cfg,
		logger:   util.GetLogger(),
	}
}

// PaymentQuote describes the transaction that settles a booking. Wei amounts
// are decimal strings.
type PaymentQuote struct {
	BookingID       string `json:"booking_id"`
	Amount          int64  `json:"amount"`
	Fiat            string `json:"fiat"`
	Asset           string `json:"asset"`
	Rate            string `json:"rate"`
	RateSource      string `json:"rate_source"`
	Fallback        bool   `json:"fallback"`
	ConvertedWei    string `json:"converted_wei"`
	RegistryIndex   uint64 `json:"registry_index"`
	Mode            string `json:"mode"`
	RentPriceWei    string `json:"rent_price_wei"`
	SharePriceWei   string `json:"share_price_wei"`
	ValueWei        string `json:"value_wei"`
	RegistryAddress string `json:"registry_address"`
	ChainID         string `json:"chain_id"`
}

// Prepare quotes the settlement transaction for a pending booking.
//
// The registry only accepts its own listed price as the transaction value, so
// ValueWei is the registry price for the chosen mode. ConvertedWei is the
// booking amount at the current exchange rate, shown alongside it.
func (s *PaymentService) Prepare(ctx context.Context, bookingID, callerID string, isRent bool) (*PaymentQuote, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Prepare", attribute.String("booking_id", bookingID))
	defer span.End()

	booking, err := loadOwnedBooking(ctx, s.bookings, bookingID, callerID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending {
		return nil, models.ErrAlreadyConfirmed
	}

	index, err := idmap.Resolve(booking.OnChainID)
	if err != nil {
		return nil, err
	}
	if s.registry == nil {
		return nil, apperr.New(apperr.ErrConfiguration, "registry not configured")
	}

	quote := s.oracle.GetExchangeRate(ctx, s.cfg.Fiat, s.cfg.Asset)
	converted, err := oracle.Convert(booking.Amount, quote.Rate, s.cfg.Precision)
	if err != nil {
		return nil, err
	}

	entry, err := s.registry.GetEntry(ctx, index)
	if err != nil {
		return nil, err
	}

	mode := "share"
	if isRent {
		mode = "rent"
	}

	s.logger.Info("Payment prepared",
		zap.String("booking_id", booking.ID),
		zap.Uint64("registry_index", index),
		zap.Bool("fallback_rate", quote.Fallback))

	return &PaymentQuote{
		BookingID:       booking.ID,
		Amount:          booking.Amount,
		Fiat:            quote.Fiat,
		Asset:           quote.Asset,
		Rate:            quote.RateString(s.cfg.Precision),
		RateSource:      quote.Source,
		Fallback:        quote.Fallback,
		ConvertedWei:    converted.String(),
		RegistryIndex:   index,
		Mode:            mode,
		RentPriceWei:    entry.RentPrice.String(),
		SharePriceWei:   entry.SharePrice.String(),
		ValueWei:        entry.Price(isRent).String(),
		RegistryAddress: s.registry.Address().Hex(),
		ChainID:         s.registry.ChainID().String(),
	}, nil
}
