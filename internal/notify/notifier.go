package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/clinic-booking/internal/reservation"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// EmailNotifier renders a template and emails it to params["email"].
type EmailNotifier struct {
	sender   EmailSender
	renderer *Renderer
	logger   *logging.Logger
}

// NewEmailNotifier creates a notifier over sender.
func NewEmailNotifier(sender EmailSender, renderer *Renderer, logger *logging.Logger) *EmailNotifier {
	if sender == nil {
		panic("notify: email sender required")
	}
	if renderer == nil {
		renderer = NewRenderer(nil)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EmailNotifier{sender: sender, renderer: renderer, logger: logger}
}

// Send implements reservation.Notifier.
func (n *EmailNotifier) Send(ctx context.Context, templateID string, params map[string]string) error {
	to := params["email"]
	if to == "" {
		return errors.New("notify: recipient email required")
	}
	subject, body, err := n.renderer.Render(templateID, params)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, EmailMessage{
		To:      to,
		ToName:  params["name"],
		Subject: subject,
		Body:    body,
	})
}

// ErrMalformedMessage marks queued bodies that can never be delivered.
var ErrMalformedMessage = errors.New("notify: malformed message")

// Message is the queued form of a notification.
type Message struct {
	TemplateID string            `json:"template_id"`
	Params     map[string]string `json:"params"`
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// QueueNotifier enqueues notifications to SQS for asynchronous delivery.
type QueueNotifier struct {
	client   sqsAPI
	queueURL string
}

// NewQueueNotifier creates a queue notifier around the provided SQS client.
func NewQueueNotifier(client *sqs.Client, queueURL string) *QueueNotifier {
	if client == nil {
		panic("notify: SQS client cannot be nil")
	}
	return newQueueNotifier(client, queueURL)
}

func newQueueNotifier(client sqsAPI, queueURL string) *QueueNotifier {
	if queueURL == "" {
		panic("notify: SQS queueURL cannot be empty")
	}
	return &QueueNotifier{client: client, queueURL: queueURL}
}

// Send implements reservation.Notifier.
func (q *QueueNotifier) Send(ctx context.Context, templateID string, params map[string]string) error {
	body, err := json.Marshal(Message{TemplateID: templateID, Params: params})
	if err != nil {
		return fmt.Errorf("notify: marshal message: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("notify: failed to send SQS message: %w", err)
	}
	return nil
}

// Deliver decodes a queued message body and sends it through n.
func Deliver(ctx context.Context, n reservation.Notifier, body string) error {
	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if msg.TemplateID == "" {
		return fmt.Errorf("%w: missing template_id", ErrMalformedMessage)
	}
	return n.Send(ctx, msg.TemplateID, msg.Params)
}

var (
	_ reservation.Notifier = (*EmailNotifier)(nil)
	_ reservation.Notifier = (*QueueNotifier)(nil)
)
