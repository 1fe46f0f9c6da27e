package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"farmrent/internal/models"
	"farmrent/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventProducer writes keyed events to the bus. *Producer implements it.
type EventProducer interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer EventProducer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer EventProducer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func listingKey(id string) string { return "listing-" + id }
func bookingKey(id string) string { return "booking-" + id }

// PublishListingSubmitted publishes ListingSubmitted event
func (ep *EventPublisher) PublishListingSubmitted(ctx context.Context, event *models.ListingSubmittedEvent) error {
	return ep.producer.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// PublishListingModerated publishes ListingModerated event
func (ep *EventPublisher) PublishListingModerated(ctx context.Context, event *models.ListingModeratedEvent) error {
	return ep.producer.PublishEvent(ctx, listingKey(event.ListingID), event)
}

// PublishBookingInitiated publishes BookingInitiated event
func (ep *EventPublisher) PublishBookingInitiated(ctx context.Context, event *models.BookingInitiatedEvent) error {
	return ep.producer.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishBookingConfirmed publishes BookingConfirmed event
func (ep *EventPublisher) PublishBookingConfirmed(ctx context.Context, event *models.BookingConfirmedEvent) error {
	return ep.producer.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// ErrMalformedEvent marks payloads that can never be handled
var ErrMalformedEvent = errors.New("malformed event")

// EventHandler handles incoming events
type EventHandler struct {
	onBookingConfirmed func(context.Context, *models.BookingConfirmedEvent) error
	onListingModerated func(context.Context, *models.ListingModeratedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnBookingConfirmed registers a handler for BookingConfirmed events
func (eh *EventHandler) OnBookingConfirmed(handler func(context.Context, *models.BookingConfirmedEvent) error) {
	eh.onBookingConfirmed = handler
}

// OnListingModerated registers a handler for ListingModerated events
func (eh *EventHandler) OnListingModerated(handler func(context.Context, *models.ListingModeratedEvent) error) {
	eh.onListingModerated = handler
}

// HandleMessage routes messages to appropriate handlers. Event types without
// a registered handler are acknowledged and skipped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: base event: %w", ErrMalformedEvent, err)
	}

	util.GetLogger().Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeBookingConfirmed:
		if eh.onBookingConfirmed != nil {
			var event models.BookingConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: BookingConfirmed: %w", ErrMalformedEvent, err)
			}
			return eh.onBookingConfirmed(ctx, &event)
		}

	case models.EventTypeListingModerated:
		if eh.onListingModerated != nil {
			var event models.ListingModeratedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: ListingModerated: %w", ErrMalformedEvent, err)
			}
			return eh.onListingModerated(ctx, &event)
		}
	}

	return nil
}
