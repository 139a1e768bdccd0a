package notification

import (
	"bytes"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantpulse/plant-server/internal/protocol"
	"github.com/plantpulse/plant-server/pkg/config"
)

// EmailNotifier renders and sends alert emails over SMTP.
type EmailNotifier struct {
	config *config.SMTPConfig
	logger zerolog.Logger
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{config: cfg, logger: logger}
}

type templateKey struct {
	channel   protocol.Channel
	direction protocol.Direction
}

// One template per (channel, direction) pair: hot/cold for temperature,
// humid/dry for humidity.
var alertTemplates = map[templateKey]struct {
	subject string
	body    string
}{
	{protocol.ChannelTemperature, protocol.DirectionHigh}: {
		subject: "Heat warning for {{.PlantName}}",
		body: `Your plant {{.PlantName}} is too hot.

Current temperature: {{printf "%.1f" .Value}}
Safe range: {{printf "%.1f" .BandMin}} to {{printf "%.1f" .BandMax}}

Move the plant away from direct sun or heat sources, and consider watering.

---
PlantPulse alerts
`,
	},
	{protocol.ChannelTemperature, protocol.DirectionLow}: {
		subject: "Cold warning for {{.PlantName}}",
		body: `Your plant {{.PlantName}} is too cold.

Current temperature: {{printf "%.1f" .Value}}
Safe range: {{printf "%.1f" .BandMin}} to {{printf "%.1f" .BandMax}}

Move the plant to a warmer spot, away from drafts and cold windows.

---
PlantPulse alerts
`,
	},
	{protocol.ChannelHumidity, protocol.DirectionHigh}: {
		subject: "Humidity warning for {{.PlantName}}",
		body: `The air around {{.PlantName}} is too humid.

Current humidity: {{printf "%.1f" .Value}}%
Safe range: {{printf "%.1f" .BandMin}}% to {{printf "%.1f" .BandMax}}%

Improve ventilation to avoid mold and fungal disease.

---
PlantPulse alerts
`,
	},
	{protocol.ChannelHumidity, protocol.DirectionLow}: {
		subject: "Dry air warning for {{.PlantName}}",
		body: `The air around {{.PlantName}} is too dry.

Current humidity: {{printf "%.1f" .Value}}%
Safe range: {{printf "%.1f" .BandMin}}% to {{printf "%.1f" .BandMax}}%

Mist the plant or run a humidifier nearby.

---
PlantPulse alerts
`,
	},
}

// SendAlert renders the template matching the event and sends it to the
// event's recipient.
func (e *EmailNotifier) SendAlert(event *protocol.AlertEvent) error {
	tmpl, ok := alertTemplates[templateKey{event.Channel, event.Direction}]
	if !ok {
		return fmt.Errorf("no template for channel %s direction %s", event.Channel, event.Direction)
	}

	data := *event
	if data.PlantName == "" {
		data.PlantName = "your plant"
	}

	subject, err := render("subject", tmpl.subject, &data)
	if err != nil {
		return fmt.Errorf("failed to render subject: %w", err)
	}
	body, err := render("body", tmpl.body, &data)
	if err != nil {
		return fmt.Errorf("failed to render body: %w", err)
	}

	return e.sendEmail(event.Recipient, subject, body)
}

func render(name, text string, event *protocol.AlertEvent) (string, error) {
	t, err := template.New(name).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, event); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (e *EmailNotifier) sendEmail(to, subject, body string) error {
	// Skip sending if SMTP is not configured
	if e.config.Username == "" || e.config.Password == "" {
		e.logger.Info().Str("to", to).Str("subject", subject).Msg("SMTP not configured, skipping email")
		return nil
	}

	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", to)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := smtp.SendMail(addr, auth, e.config.From, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	return nil
}
