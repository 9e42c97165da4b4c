package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/ariefcatur/go-commerce-backend/internal/apperr"
	"github.com/ariefcatur/go-commerce-backend/internal/config"
)

// Messenger is satisfied by *messaging.Client.
type Messenger interface {
	Send(ctx context.Context, m *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, m *messaging.MulticastMessage) (*messaging.BatchResponse, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

type PushMessage struct {
	Title string            `json:"title" validate:"required"`
	Body  string            `json:"body" validate:"required"`
	Data  map[string]string `json:"data"`
}

type BatchResult struct {
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
}

// Push is usable when unconfigured; every call then reports ServiceUnavailable.
type Push struct {
	client Messenger
	log    *logrus.Entry
}

func NewPush(ctx context.Context, cfg config.FirebaseConfig, log *logrus.Entry) *Push {
	if !cfg.Configured() {
		log.Warn("firebase credentials missing, push notifications disabled")
		return &Push{log: log}
	}
	creds, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"project_id":   cfg.ProjectID,
		"private_key":  cfg.PrivateKey,
		"client_email": cfg.ClientEmail,
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
	if err != nil {
		log.WithError(err).Error("encode firebase credentials")
		return &Push{log: log}
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, option.WithCredentialsJSON(creds))
	if err != nil {
		log.WithError(err).Error("firebase initialization failed")
		return &Push{log: log}
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		log.WithError(err).Error("firebase messaging client")
		return &Push{log: log}
	}
	log.Info("firebase initialized")
	return NewPushWithClient(client, log)
}

func NewPushWithClient(c Messenger, log *logrus.Entry) *Push {
	return &Push{client: c, log: log}
}

func (p *Push) Configured() bool { return p.client != nil }

func (p *Push) ready() error {
	if p.client == nil {
		return apperr.ServiceUnavailable("Firebase is not configured")
	}
	return nil
}

func notification(m PushMessage) *messaging.Notification {
	return &messaging.Notification{Title: m.Title, Body: m.Body}
}

func (p *Push) Send(ctx context.Context, token string, m PushMessage) (string, error) {
	if err := p.ready(); err != nil {
		return "", err
	}
	id, err := p.client.Send(ctx, &messaging.Message{Token: token, Notification: notification(m), Data: m.Data})
	if err != nil {
		p.log.WithError(err).Error("send push notification")
		return "", apperr.Wrap(http.StatusInternalServerError, "Failed to send push notification", err)
	}
	p.log.WithField("message_id", id).Info("push notification sent")
	return id, nil
}

func (p *Push) SendMulticast(ctx context.Context, tokens []string, m PushMessage) (*BatchResult, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	resp, err := p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: notification(m),
		Data:         m.Data,
	})
	if err != nil {
		p.log.WithError(err).Error("send multicast notification")
		return nil, apperr.Wrap(http.StatusInternalServerError, "Failed to send notifications", err)
	}
	p.log.WithFields(logrus.Fields{"success": resp.SuccessCount, "failed": resp.FailureCount}).Info("multicast notification sent")
	return &BatchResult{SuccessCount: resp.SuccessCount, FailureCount: resp.FailureCount}, nil
}

func (p *Push) SendTopic(ctx context.Context, topic string, m PushMessage) (string, error) {
	if err := p.ready(); err != nil {
		return "", err
	}
	id, err := p.client.Send(ctx, &messaging.Message{Topic: topic, Notification: notification(m), Data: m.Data})
	if err != nil {
		p.log.WithError(err).Error("send topic notification")
		return "", apperr.Wrap(http.StatusInternalServerError, "Failed to send topic notification", err)
	}
	p.log.WithFields(logrus.Fields{"topic": topic, "message_id": id}).Info("topic notification sent")
	return id, nil
}

func (p *Push) Subscribe(ctx context.Context, tokens []string, topic string) (*BatchResult, error) {
	return p.manageTopic(ctx, tokens, topic, true)
}

func (p *Push) Unsubscribe(ctx context.Context, tokens []string, topic string) (*BatchResult, error) {
	return p.manageTopic(ctx, tokens, topic, false)
}

func (p *Push) manageTopic(ctx context.Context, tokens []string, topic string, subscribe bool) (*BatchResult, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	var (
		resp *messaging.TopicManagementResponse
		err  error
		verb = "subscribe to"
	)
	if subscribe {
		resp, err = p.client.SubscribeToTopic(ctx, tokens, topic)
	} else {
		verb = "unsubscribe from"
		resp, err = p.client.UnsubscribeFromTopic(ctx, tokens, topic)
	}
	if err != nil {
		p.log.WithError(err).WithField("topic", topic).Error(verb + " topic")
		return nil, apperr.Wrap(http.StatusInternalServerError, fmt.Sprintf("Failed to %s topic", verb), err)
	}
	p.log.WithFields(logrus.Fields{"topic": topic, "success": resp.SuccessCount}).Info(verb + " topic")
	return &BatchResult{SuccessCount: resp.SuccessCount, FailureCount: resp.FailureCount}, nil
}
