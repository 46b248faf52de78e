package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/photobooth-auth/internal/events"
)

// AuditService logs auth lifecycle events.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventUserRegistered, a.handle)
	a.dispatcher.Subscribe(events.EventUserLoggedIn, a.handle)
	a.dispatcher.Subscribe(events.EventTokenRefreshed, a.handle)
	a.dispatcher.Subscribe(events.EventPasswordChanged, a.handle)
	a.dispatcher.Subscribe(events.EventUserLoggedOut, a.handle)
}

func (a *AuditService) handle(_ context.Context, event events.Event) error {
	a.logger.Info("auth event",
		zap.String("event_type", string(event.Type)),
		zap.String("user_id", event.UserID),
		zap.Time("at", event.Timestamp))
	return nil
}
