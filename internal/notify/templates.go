package notify

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/wolfman30/clinic-booking/internal/reservation"
)

// Template is the subject and plain-text body of one notification.
type Template struct {
	Subject string
	Body    string
}

// DefaultTemplates covers the notifications the reservation core emits.
var DefaultTemplates = map[string]Template{
	reservation.TemplateBookingConfirmed: {
		Subject: "Your appointment on {{.date}} at {{.time}} is confirmed",
		Body: `Hi {{.name}},

Your {{.service}} appointment is booked for {{.date}} at {{.time}}.
Deposit paid: {{.deposit}} of {{.price}}.

Booking reference: {{.booking_id}}
You can reschedule this appointment once.
`,
	},
	reservation.TemplateBookingRescheduled: {
		Subject: "Your appointment moved to {{.date}} at {{.time}}",
		Body: `Hi {{.name}},

Your {{.service}} appointment has moved from {{.previous_date}} at {{.previous_time}}
to {{.date}} at {{.time}}.

Booking reference: {{.booking_id}}
This booking can no longer be rescheduled online.
`,
	},
}

// Renderer renders notification templates with strict missing-key semantics.
type Renderer struct {
	templates map[string]Template
}

// NewRenderer creates a renderer; nil templates means DefaultTemplates.
func NewRenderer(templates map[string]Template) *Renderer {
	if templates == nil {
		templates = DefaultTemplates
	}
	return &Renderer{templates: templates}
}

// Render returns the subject and body for templateID.
func (r *Renderer) Render(templateID string, params map[string]string) (subject, body string, err error) {
	tpl, ok := r.templates[templateID]
	if !ok {
		return "", "", fmt.Errorf("notify: unknown template %q", templateID)
	}
	if subject, err = render(templateID+".subject", tpl.Subject, params); err != nil {
		return "", "", err
	}
	if body, err = render(templateID+".body", tpl.Body, params); err != nil {
		return "", "", err
	}
	return subject, body, nil
}

func render(name, text string, data map[string]string) (string, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("notify: parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: execute %s: %w", name, err)
	}
	return buf.String(), nil
}
