// Package notify delivers "now in stock" events to discord webhooks and email
// addresses.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
)

var ErrUnsupportedEndpoint = errors.New("unsupported notification endpoint")

type Field struct {
	Name  string
	Value string
}

type Event struct {
	Title       string
	Description string
	URL         string
	Fields      []Field
}

// Sink delivers an event to an endpoint, the meaning of endpoint depends on
// the implementation.
type Sink interface {
	Notify(ctx context.Context, endpoint string, event Event) error
}

var discordWebhook = regexp.MustCompile(`^https://discord\.com/api/webhooks/`)

// mailtoAddress returns the address of a mailto: endpoint.
func mailtoAddress(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Scheme != "mailto" {
		return "", fmt.Errorf("%q is not a mailto url", endpoint)
	}
	addr, err := mail.ParseAddress(u.Opaque)
	if err != nil {
		return "", fmt.Errorf("mailto address: %w", err)
	}
	return addr.Address, nil
}

// ValidateEndpoint accepts discord webhook urls and mailto: addresses.
func ValidateEndpoint(endpoint string) error {
	switch {
	case strings.HasPrefix(endpoint, "mailto:"):
		_, err := mailtoAddress(endpoint)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnsupportedEndpoint, err)
		}
		return nil
	case discordWebhook.MatchString(endpoint):
		return nil
	}
	return fmt.Errorf("%w: %q must be a discord webhook (https://discord.com/api/webhooks/...) or a mailto: address", ErrUnsupportedEndpoint, endpoint)
}

// Router sends mailto: endpoints to Email and everything else to Discord.
type Router struct {
	Discord Sink
	Email   Sink
}

func (r Router) Notify(ctx context.Context, endpoint string, event Event) error {
	err := ValidateEndpoint(endpoint)
	if err != nil {
		return err
	}
	if strings.HasPrefix(endpoint, "mailto:") {
		if r.Email == nil {
			return fmt.Errorf("%w: email is not configured", ErrUnsupportedEndpoint)
		}
		return r.Email.Notify(ctx, endpoint, event)
	}
	return r.Discord.Notify(ctx, endpoint, event)
}
