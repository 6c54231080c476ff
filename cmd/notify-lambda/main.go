package main

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/clinic-booking/cmd/mainconfig"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/notify"
	"github.com/wolfman30/clinic-booking/internal/reservation"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		panic(err)
	}
	sender := mainconfig.EmailSender(cfg, awsCfg, logger)
	notifier := notify.NewEmailNotifier(sender, notify.NewRenderer(nil), logger)

	lambda.Start(func(ctx context.Context, evt events.SQSEvent) (events.SQSEventResponse, error) {
		return handle(ctx, notifier, logger, evt), nil
	})
}

// handle delivers every record and reports transient failures back to SQS so
// only those are retried. Malformed bodies are dropped.
func handle(ctx context.Context, n reservation.Notifier, logger *logging.Logger, evt events.SQSEvent) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, record := range evt.Records {
		err := notify.Deliver(ctx, n, record.Body)
		switch {
		case err == nil:
			continue
		case errors.Is(err, notify.ErrMalformedMessage):
			logger.Error("dropping malformed notification", "message_id", record.MessageId, "error", err)
		default:
			logger.Warn("notification delivery failed", "message_id", record.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return resp
}
