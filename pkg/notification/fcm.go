package notification

import (
	"context"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Service sends FCM wake-up pushes. A nil Service is valid and does
// nothing, so push delivery is strictly optional.
type Service struct {
	client *messaging.Client
}

// New creates the FCM service. Returns nil (not an error) when Firebase
// is not configured or unavailable so server startup is never blocked.
func New(credentialsFile string) (*Service, error) {
	if credentialsFile == "" {
		log.Println("⚠️  Firebase credentials not provided, push notifications disabled")
		return nil, nil
	}

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(context.Background(), nil, opt)
	if err != nil {
		log.Printf("⚠️  Failed to initialize Firebase app: %v (push notifications disabled)", err)
		return nil, nil
	}

	client, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("⚠️  Failed to get messaging client: %v", err)
		return nil, nil
	}

	log.Println("✅ Firebase FCM initialized")
	return &Service{client: client}, nil
}

// SendDataNotification sends a data-only push telling the devices to
// reconnect/re-pull their media listing.
func (s *Service) SendDataNotification(ctx context.Context, tokens []string, mediaID string) error {
	if s == nil || s.client == nil || len(tokens) == 0 {
		return nil
	}

	msg := &messaging.MulticastMessage{
		Tokens: tokens,
		Data: map[string]string{
			"type":     "data_notification",
			"media_id": mediaID,
		},
	}

	resp, err := s.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return err
	}
	if resp.FailureCount > 0 {
		log.Printf("⚠️  FCM: %d/%d pushes failed", resp.FailureCount, len(tokens))
	}
	return nil
}
