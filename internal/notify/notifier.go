// internal/notify/notifier.go

// Package notify publishes terminal-state events for finished sessions.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"research-pipeline/internal/common/logger"
	"research-pipeline/internal/models"
)

// Notifier announces that a session reached a terminal state.
type Notifier interface {
	SessionFinished(ctx context.Context, sess *models.AnalysisSession) error
}

// SNSPublisher is the slice of the SNS API the notifier uses.
type SNSPublisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// sessionEvent is the JSON payload published per terminal session.
type sessionEvent struct {
	SessionID   string  `json:"sessionId"`
	Topic       string  `json:"topic"`
	Status      string  `json:"status"`
	SuccessRate float64 `json:"successRate,omitempty"`
	FinishedAt  string  `json:"finishedAt"`
}

// SNSNotifier publishes session events to one topic. Publish failures are
// logged and swallowed: a notification must never change a session outcome.
type SNSNotifier struct {
	publisher SNSPublisher
	topicARN  string
	logger    logger.Logger
}

func NewSNSNotifier(publisher SNSPublisher, topicARN string, log logger.Logger) *SNSNotifier {
	return &SNSNotifier{
		publisher: publisher,
		topicARN:  topicARN,
		logger:    log.With(map[string]interface{}{"component": "notifier"}),
	}
}

func (n *SNSNotifier) SessionFinished(ctx context.Context, sess *models.AnalysisSession) error {
	event := sessionEvent{
		SessionID:  sess.ID,
		Topic:      sess.Topic,
		Status:     string(sess.Status),
		FinishedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if sess.Report != nil {
		event.SuccessRate = sess.Report.SuccessRate
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = n.publisher.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String("analysis-session-finished"),
		Message:  aws.String(string(payload)),
	})
	if err != nil {
		n.logger.WithError(err).Warn("terminal-state publish failed", map[string]interface{}{
			"sessionId": sess.ID,
		})
		return err
	}

	n.logger.Info("terminal-state published", map[string]interface{}{
		"sessionId": sess.ID,
		"status":    string(sess.Status),
	})
	return nil
}

// NoOpNotifier satisfies Notifier when notifications are disabled.
type NoOpNotifier struct{}

func (NoOpNotifier) SessionFinished(context.Context, *models.AnalysisSession) error { return nil }
