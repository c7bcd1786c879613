// Package notify delivers escalation alerts to human operators.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"submission-engine/internal/common/aws"
	"submission-engine/internal/common/errors"
	"submission-engine/internal/common/logger"
	"submission-engine/internal/models"
)

// EscalationNotifier alerts operators that a task needs manual handling.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, task *models.SubmissionTask, reason string) error
}

// SNSNotifier publishes escalation alerts to an SNS topic the operations
// team subscribes to.
type SNSNotifier struct {
	sns      *aws.SNSClient
	topicARN string
	logger   logger.Logger
}

func NewSNSNotifier(client *aws.SNSClient, topicARN string, log logger.Logger) *SNSNotifier {
	return &SNSNotifier{
		sns:      client,
		topicARN: topicARN,
		logger:   log.WithFields(map[string]interface{}{"component": "escalation-notifier"}),
	}
}

type escalationMessage struct {
	TaskID        string    `json:"taskId"`
	TransactionID string    `json:"transactionId"`
	ServicerID    string    `json:"servicerId"`
	Priority      string    `json:"priority"`
	Reason        string    `json:"reason"`
	RetryCount    int       `json:"retryCount"`
	LastError     string    `json:"lastError,omitempty"`
	Deadline      string    `json:"deadline,omitempty"`
	EscalatedAt   time.Time `json:"escalatedAt"`
}

func (n *SNSNotifier) NotifyEscalation(ctx context.Context, task *models.SubmissionTask, reason string) error {
	msg := escalationMessage{
		TaskID:        task.ID,
		TransactionID: task.TransactionID,
		ServicerID:    task.ServicerID,
		Priority:      string(task.Priority),
		Reason:        reason,
		RetryCount:    task.RetryCount,
		EscalatedAt:   time.Now().UTC(),
	}
	if len(task.ErrorHistory) > 0 {
		msg.LastError = task.ErrorHistory[len(task.ErrorHistory)-1].Message
	}
	if deadline, ok := task.Deadline(); ok {
		msg.Deadline = deadline.Format(time.RFC3339)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return errors.NewNotificationSendFailedError("sns", err)
	}

	_, err = n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(n.topicARN),
		Subject:  awssdk.String(fmt.Sprintf("Submission escalation: %s / %s", task.ServicerID, task.TransactionID)),
		Message:  awssdk.String(string(body)),
	})
	if err != nil {
		return errors.NewNotificationSendFailedError("sns", err)
	}

	n.logger.Info("escalation published", map[string]interface{}{
		"taskId":     task.ID,
		"servicerId": task.ServicerID,
		"reason":     reason,
	})
	return nil
}

// LogNotifier is the fallback when no SNS topic is configured: escalations
// surface only in the logs.
type LogNotifier struct {
	logger logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.WithFields(map[string]interface{}{"component": "escalation-notifier"})}
}

func (n *LogNotifier) NotifyEscalation(ctx context.Context, task *models.SubmissionTask, reason string) error {
	n.logger.Warn("task escalated to manual handling", map[string]interface{}{
		"taskId":        task.ID,
		"transactionId": task.TransactionID,
		"servicerId":    task.ServicerID,
		"priority":      string(task.Priority),
		"reason":        reason,
		"retryCount":    task.RetryCount,
	})
	return nil
}
