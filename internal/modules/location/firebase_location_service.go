// Package location turns partner location samples into live ETAs for orders
// out for delivery. FirebaseService mirrors positions to the Realtime Database
// for the customer map and sends FCM pushes for order progress.
package location

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"firebase.google.com/go/v4/db"
	"firebase.google.com/go/v4/messaging"

	"freshcart/internal/maps"
	"freshcart/internal/modules/order"
	"freshcart/internal/types"
)

// FirebaseService writes RTDB mirrors and FCM topic messages. Either client
// may be nil, in which case that half is a no-op.
type FirebaseService struct {
	dbClient  *db.Client
	msgClient *messaging.Client
}

var (
	_ Mirror         = (*FirebaseService)(nil)
	_ Pusher         = (*FirebaseService)(nil)
	_ order.Notifier = (*FirebaseService)(nil)
)

func NewFirebaseService(dbClient *db.Client, msgClient *messaging.Client) *FirebaseService {
	return &FirebaseService{dbClient: dbClient, msgClient: msgClient}
}

// ---------------------------------------------------------------------------
// RTDB data models
// ---------------------------------------------------------------------------

// rtdbPartnerLocation is stored under /partner_locations/{partnerId}.
type rtdbPartnerLocation struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
}

// rtdbOrderTracking is stored under /order_tracking/{orderId}.
type rtdbOrderTracking struct {
	Status           string  `json:"status"`
	PartnerLat       float64 `json:"partnerLat"`
	PartnerLng       float64 `json:"partnerLng"`
	ETASeconds       int     `json:"etaSeconds"`
	DistanceMeters   int     `json:"distanceMeters"`
	EstimatedArrival int64   `json:"estimatedArrival"`
	Source           string  `json:"source"`
	UpdatedAt        int64   `json:"updatedAt"`
}

func OrderTopic(id types.ID) string { return "order_" + string(id) }
func PartnerTopic(id types.ID) string { return "partner_" + string(id) }

// ---------------------------------------------------------------------------
// Mirror
// ---------------------------------------------------------------------------

func (s *FirebaseService) PartnerLocation(ctx context.Context, partnerID types.ID, pos types.Point, at time.Time) error {
	if s.dbClient == nil {
		return nil
	}
	ref := s.dbClient.NewRef("partner_locations/" + string(partnerID))
	if err := ref.Set(ctx, rtdbPartnerLocation{Lat: pos.Lat, Lng: pos.Lng, Timestamp: at.UnixMilli()}); err != nil {
		return fmt.Errorf("writing partner location %s: %w", partnerID, err)
	}
	return nil
}

func (s *FirebaseService) OrderTracking(ctx context.Context, o *order.Order, pos types.Point, est maps.Estimate) error {
	if s.dbClient == nil {
		return nil
	}
	ref := s.dbClient.NewRef("order_tracking/" + string(o.ID))
	entry := rtdbOrderTracking{
		Status:           string(o.Status),
		PartnerLat:       pos.Lat,
		PartnerLng:       pos.Lng,
		ETASeconds:       int(est.Duration / time.Second),
		DistanceMeters:   est.DistanceMeters,
		EstimatedArrival: est.Arrival.UnixMilli(),
		Source:           string(est.Source),
		UpdatedAt:        time.Now().UnixMilli(),
	}
	if err := ref.Set(ctx, entry); err != nil {
		return fmt.Errorf("writing order tracking %s: %w", o.ID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Push notifications
// ---------------------------------------------------------------------------

func (s *FirebaseService) AlmostThere(ctx context.Context, o *order.Order, est maps.Estimate) error {
	minutes := int(est.Duration.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return s.send(ctx, &messaging.Message{
		Topic: OrderTopic(o.ID),
		Data: map[string]string{
			"type":        "almost_there",
			"order_id":    string(o.ID),
			"eta_seconds": strconv.Itoa(int(est.Duration / time.Second)),
			"distance_m":  strconv.Itoa(est.DistanceMeters),
		},
		Notification: &messaging.Notification{
			Title: "Your order is almost there",
			Body:  fmt.Sprintf("Your delivery partner is about %d min away", minutes),
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	})
}

// OrderStatusChanged pushes the new status to the customer's order topic and,
// for a fresh assignment, tells the partner about the order.
func (s *FirebaseService) OrderStatusChanged(ctx context.Context, o *order.Order) {
	if s.dbClient != nil {
		ref := s.dbClient.NewRef("order_tracking/" + string(o.ID))
		if err := ref.Update(ctx, map[string]interface{}{
			"status":    string(o.Status),
			"updatedAt": time.Now().UnixMilli(),
		}); err != nil {
			log.Printf("tracking: mirror status of %s: %v", o.ID, err)
		}
	}

	if err := s.send(ctx, &messaging.Message{
		Topic: OrderTopic(o.ID),
		Data: map[string]string{
			"type":     "status_changed",
			"order_id": string(o.ID),
			"status":   string(o.Status),
		},
		Notification: &messaging.Notification{
			Title: "Order update",
			Body:  statusMessage(o),
		},
	}); err != nil {
		log.Printf("tracking: status push for %s: %v", o.ID, err)
	}

	if o.Status == order.StatusConfirmed && o.DeliveryPartner != nil {
		err := s.send(ctx, &messaging.Message{
			Topic: PartnerTopic(o.DeliveryPartner.ID),
			Data: map[string]string{
				"type":     "new_order",
				"order_id": string(o.ID),
				"address":  o.DeliveryAddress,
				"total":    strconv.FormatInt(o.Total.Amount, 10),
			},
			Notification: &messaging.Notification{
				Title: "New delivery assigned",
				Body:  o.DeliveryAddress,
			},
			Android: &messaging.AndroidConfig{Priority: "high"},
		})
		if err != nil {
			log.Printf("tracking: assignment push for %s: %v", o.ID, err)
		}
	}
}

func (s *FirebaseService) send(ctx context.Context, msg *messaging.Message) error {
	if s.msgClient == nil {
		return nil
	}
	messageID, err := s.msgClient.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending FCM to topic %s: %w", msg.Topic, err)
	}
	log.Printf("tracking: FCM sent to %s, message_id=%s", msg.Topic, messageID)
	return nil
}

func statusMessage(o *order.Order) string {
	switch o.Status {
	case order.StatusConfirmed:
		return "Your order has been confirmed"
	case order.StatusPreparing:
		return "Your order is being packed"
	case order.StatusOutForDelivery:
		return "Your order is on the way"
	case order.StatusReachedDestination:
		return "Your delivery partner has arrived. Share your delivery code to receive the order"
	case order.StatusDelivered:
		return "Your order has been delivered"
	case order.StatusCancelled:
		if o.CancelledReason != "" {
			return "Your order was cancelled: " + o.CancelledReason
		}
		return "Your order was cancelled"
	}
	return "Your order status is " + string(o.Status)
}
