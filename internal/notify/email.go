package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"productchecker/internal/components/assert"
	"productchecker/internal/components/telemetry"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("productchecker/internal/notify")

type SmtpConfig struct {
	Server       string `json:"server" env:"SERVER"`
	Port         int    `json:"port" env:"PORT" validate:"omitempty,min=1,max=65535"`
	EmailAddress string `json:"email_address" env:"EMAIL_ADDRESS" validate:"omitempty,email"`
	Password     string `json:"password" env:"PASSWORD"`
}

// Email sends events to mailto: endpoints over SMTP.
type Email struct {
	config SmtpConfig
	tel    telemetry.API
}

func NewEmail(config SmtpConfig, tel telemetry.API) Email {
	assert.NotNil(tel, "telemetry")
	assert.NotEmptyStr(config.Server, "smtp server")
	assert.NotEmptyStr(config.EmailAddress, "smtp email address")

	return Email{
		config: config,
		tel:    telemetry.NewScopedAPI("notify", tel),
	}
}

func emailBody(event Event) string {
	var body strings.Builder
	body.WriteString(event.Description)
	body.WriteString("\n")
	body.WriteString(event.URL)
	body.WriteString("\n\n")
	for _, f := range event.Fields {
		body.WriteString(fmt.Sprintf("%s: %s\n", f.Name, f.Value))
	}
	return body.String()
}

func (e Email) Notify(ctx context.Context, endpoint string, event Event) error {
	_, span := tracer.Start(ctx, "Email.Notify")
	defer span.End()

	to, err := mailtoAddress(endpoint)
	if err != nil {
		return err
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Product Checker <%s>", e.config.EmailAddress)
	mail.To = []string{to}
	mail.Subject = event.Title
	mail.Text = []byte(emailBody(event))

	addr := fmt.Sprintf("%s:%d", e.config.Server, e.config.Port)
	err = mail.Send(
		addr,
		smtp.PlainAuth("", e.config.EmailAddress, e.config.Password, e.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
