package reservation

import (
	"context"
	"strconv"
)

// Notification template ids.
const (
	TemplateBookingConfirmed   = "booking_confirmed"
	TemplateBookingRescheduled = "booking_rescheduled"
)

// Notification delivery statuses reported to the Recorder.
const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// notify sends a notification after the authoritative mutation. Failures are
// logged and swallowed.
func (d Deps) notify(ctx context.Context, templateID string, params map[string]string) {
	status := NotificationSent
	if err := d.Notifier.Send(ctx, templateID, params); err != nil {
		status = NotificationFailed
		d.Logger.Warn("notification failed",
			"template", templateID,
			"booking_id", params["booking_id"],
			"email", params["email"],
			"error", err,
		)
	}
	d.Metrics.ObserveNotification(templateID, status)
}

// BookingParams flattens a booking into template parameters.
func BookingParams(b Booking) map[string]string {
	return map[string]string{
		"booking_id": b.ID,
		"name":       b.Name,
		"email":      b.Email,
		"phone":      b.Phone,
		"service":    b.ServiceRef,
		"date":       b.Date.String(),
		"time":       b.Time.String(),
		"price":      strconv.FormatInt(b.Price, 10),
		"deposit":    strconv.FormatInt(b.Deposit, 10),
	}
}
