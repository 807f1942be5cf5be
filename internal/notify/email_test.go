package notify

import (
	"context"
	"io"
	"log"
	"testing"

	"productchecker/internal/components/telemetry"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestEmailDelivers(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a fake smtp server container")
	}
	ctx := context.Background()

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	smtpServer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "haravich/fake-smtp-server",
			ExposedPorts: []string{"1025/tcp", "1080/tcp"},
			WaitingFor:   wait.ForLog("smtp://0.0.0.0:1025"),
		},
	})
	if err != nil {
		t.Skipf("could not start smtp container: %s", err)
	}
	t.Cleanup(func() {
		smtpServer.Terminate(context.Background())
	})

	host, err := smtpServer.Host(ctx)
	require.NoError(t, err)
	smtpPort, err := smtpServer.MappedPort(ctx, "1025/tcp")
	require.NoError(t, err)
	webPort, err := smtpServer.MappedPort(ctx, "1080/tcp")
	require.NoError(t, err)

	sink := NewEmail(SmtpConfig{
		Server:       host,
		Port:         smtpPort.Int(),
		EmailAddress: "checker@example.com",
		Password:     "default",
	}, &telemetry.MemoryAPI{})

	err = sink.Notify(ctx, "mailto:alice@example.com", Event{
		Title:       "Product in Stock: tv",
		Description: "Sony Bravia XR",
		URL:         "https://www.bestbuy.com/site/123.p",
		Fields:      []Field{{Name: "Stock", Value: "Yes"}, {Name: "Price", Value: "$499.99"}},
	})
	require.NoError(t, err)

	res, err := resty.New().R().
		Get("http://" + host + ":" + webPort.Port() + "/messages/1.plain")
	require.NoError(t, err)
	require.Contains(t, res.String(), "Sony Bravia XR")
	require.Contains(t, res.String(), "Price: $499.99")
}
