package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
)

// ErrSubscriptionExpired is returned when the push service answers 410 Gone.
var ErrSubscriptionExpired = errors.New("push subscription expired")

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

// Notifier tells a browser that an async run has finished.
type Notifier struct {
	sender  NotificationSender
	options *webpush.Options
}

// NewNotifier creates a notifier that sends through the webpush library.
func NewNotifier(options *webpush.Options) *Notifier {
	return &Notifier{sender: &WebPushSender{}, options: options}
}

type completionPayload struct {
	RunID  string `json:"run_id"`
	Status Status `json:"status"`
	Booked int    `json:"booked"`
}

// Notify sends the completion message for run to sub.
func (n *Notifier) Notify(run Run, sub *webpush.Subscription) error {
	p := completionPayload{RunID: run.ID, Status: run.Status}
	if run.Result != nil {
		p.Booked = len(run.Result.Bookings)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	resp, err := n.sender.Send(payload, sub, n.options)
	if err != nil {
		return fmt.Errorf("failed to send notification to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired.", sub.Endpoint)
		return ErrSubscriptionExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service answered %d for %s", resp.StatusCode, sub.Endpoint)
	}
	return nil
}
