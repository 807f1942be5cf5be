package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"productchecker/internal/components/assert"
	"productchecker/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
)

const report_discord_send = "discord.send"

const embedColor = 0x563d7c

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

func discordMessageFor(event Event) discordMessage {
	embed := discordEmbed{
		Title:       event.Title,
		Description: event.Description,
		URL:         event.URL,
		Color:       embedColor,
	}
	for _, f := range event.Fields {
		embed.Fields = append(embed.Fields, discordField{Name: f.Name, Value: f.Value, Inline: true})
	}
	return discordMessage{Embeds: []discordEmbed{embed}}
}

// Discord posts events as a single embed to a discord webhook url.
type Discord struct {
	http *resty.Client
	tel  telemetry.API
}

func NewDiscord(tel telemetry.API) Discord {
	assert.NotNil(tel, "telemetry")
	tel = telemetry.NewScopedAPI("notify", tel)

	client := resty.New()
	client.SetTimeout(15 * time.Second)
	client.SetHeader("Content-Type", "application/json")
	telemetry.InstrumentResty(client, tel)

	return Discord{http: client, tel: tel}
}

func (d Discord) Notify(ctx context.Context, endpoint string, event Event) error {
	res, err := d.http.R().
		SetContext(ctx).
		SetBody(discordMessageFor(event)).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	if res.IsError() {
		err = fmt.Errorf("discord webhook: unexpected status %s", res.Status())
		d.tel.ReportBroken(report_discord_send, err, slog.String("body", res.String()))
		return err
	}
	return nil
}
