package persistence

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/spec-kit/support-tickets/internal/config"
)

// Firebase wraps the Firebase app and the clients derived from it.
type Firebase struct {
	App *firebase.App

	mu        sync.Mutex
	firestore *firestore.Client
	messaging *messaging.Client
}

// NewFirebase initializes the Firebase app. Without a credentials file the
// SDK falls back to application default credentials.
func NewFirebase(ctx context.Context, cfg config.FirestoreConfig, logger *zap.Logger) (*Firebase, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	logger.Info("firebase app initialized", zap.String("project_id", cfg.ProjectID))
	return &Firebase{App: app}, nil
}

// Firestore returns the shared Firestore client, creating it on first use.
func (f *Firebase) Firestore(ctx context.Context) (*firestore.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.firestore != nil {
		return f.firestore, nil
	}
	client, err := f.App.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	f.firestore = client
	return client, nil
}

// Messaging returns the shared FCM client, creating it on first use.
func (f *Firebase) Messaging(ctx context.Context) (*messaging.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messaging != nil {
		return f.messaging, nil
	}
	client, err := f.App.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("create messaging client: %w", err)
	}
	f.messaging = client
	return client, nil
}

// Close releases the Firestore client.
func (f *Firebase) Close() {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.firestore != nil {
		_ = f.firestore.Close()
		f.firestore = nil
	}
}
