package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"clubhouse-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WebPushSink pushes events to browser subscriptions. Broadcast events go to
// every subscription, addressed events to the recipient's subscriptions only.
type WebPushSink struct {
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWebPushSink creates a sink using the real webpush sender.
func NewWebPushSink(db *gorm.DB, options *webpush.Options) *WebPushSink {
	return &WebPushSink{db: db, webpush: options, sender: &WebPushSender{}}
}

// Name implements Sink.
func (s *WebPushSink) Name() string { return "webpush" }

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Kind  Kind   `json:"kind"`
	ID    int64  `json:"entityId"`
}

// Deliver implements Sink.
func (s *WebPushSink) Deliver(ctx context.Context, ev Event) error {
	var subscriptions []model.PushSubscription
	q := s.db.WithContext(ctx)
	if ev.Recipient != "" {
		q = q.Where("user_id = ?", ev.Recipient)
	}
	if err := q.Find(&subscriptions).Error; err != nil {
		return fmt.Errorf("fetching subscriptions: %w", err)
	}
	if len(subscriptions) == 0 {
		return nil
	}

	body, err := json.Marshal(pushPayload{Title: "Club", Body: Message(ev), Kind: ev.Kind, ID: ev.EntityID})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	log.Printf("Sending %d push notifications for %s event %s", len(subscriptions), ev.Kind, ev.ID)
	for _, sub := range subscriptions {
		s.sendNotification(ctx, sub, body)
	}
	return nil
}

// sendNotification sends a single web push notification.
func (s *WebPushSink) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := s.sender.Send(payload, wpSub, s.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := s.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
