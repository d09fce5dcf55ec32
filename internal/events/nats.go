// Package events carries messaging events between api instances over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/kalviumcommunity/S89-Neo-Capstone-RetroRade/internal/messaging"
)

// SubjectMessagingEvents is the subject every instance publishes to and listens on.
const SubjectMessagingEvents = "retrorade.messaging.events"

const (
	maxReconnects = 60
	reconnectWait = 2 * time.Second
)

// Client wraps a NATS connection.
type Client struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// Connect dials url and keeps reconnecting for a while after a disconnect.
func Connect(url string, log zerolog.Logger) (*Client, error) {
	log = log.With().Str("component", "events").Logger()

	opts := []nats.Option{
		nats.Name("retrorade-api"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Client{conn: conn, log: log}, nil
}

// Publish implements messaging.Notifier by sending evt to every instance.
func (c *Client) Publish(_ context.Context, evt messaging.Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return c.conn.Publish(SubjectMessagingEvents, b)
}

// Forward delivers every event seen on the bus to local.
func (c *Client) Forward(local messaging.Notifier) (*nats.Subscription, error) {
	return c.conn.Subscribe(SubjectMessagingEvents, Handler(local, c.log))
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}

// Handler decodes bus messages and hands them to local.
func Handler(local messaging.Notifier, log zerolog.Logger) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var evt messaging.Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			log.Warn().Err(err).Msg("dropping undecodable event")
			return
		}
		if err := local.Publish(context.Background(), evt); err != nil {
			log.Warn().Err(err).Str("type", string(evt.Type)).Msg("local delivery failed")
		}
	}
}
