package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/stan.go"
)

type NATSClient struct {
	conn stan.Conn
}

type Config struct {
	URL       string `yaml:"url"`
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	Enabled   bool   `yaml:"enabled"`
}

// NewNATSClient connects to NATS Streaming. A disabled config yields a client
// whose Publish is a no-op, so the API can run without a broker.
func NewNATSClient(cfg Config) (*NATSClient, error) {
	if !cfg.Enabled {
		slog.Warn("NATS disabled, domain events will not be published")
		return &NATSClient{}, nil
	}

	// Unique per process so several API replicas can share a cluster
	clientID := fmt.Sprintf("%s-%s", cfg.ClientID, uuid.New().String()[:8])

	conn, err := stan.Connect(cfg.ClusterID, clientID,
		stan.NatsURL(cfg.URL),
		stan.SetConnectionLostHandler(func(_ stan.Conn, reason error) {
			slog.Error("NATS Streaming connection lost", "error", reason)
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS Streaming: %w", err)
	}

	slog.Info("Connected to NATS Streaming",
		"url", cfg.URL, "cluster", cfg.ClusterID, "client", clientID)

	return &NATSClient{conn: conn}, nil
}

func (nc *NATSClient) Connected() bool {
	return nc != nil && nc.conn != nil
}

func (nc *NATSClient) Publish(subject string, data interface{}) error {
	if !nc.Connected() {
		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := nc.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}

	slog.Debug("Published message", "subject", subject)
	return nil
}

func (nc *NATSClient) Subscribe(subject string, handler stan.MsgHandler) (stan.Subscription, error) {
	if !nc.Connected() {
		return nil, fmt.Errorf("subscribe to %s: not connected", subject)
	}

	sub, err := nc.conn.Subscribe(subject, handler, stan.DurableName(subject+"-durable"))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	slog.Info("Subscribed to subject", "subject", subject)
	return sub, nil
}

// SubscribeQueue uses manual acks; handlers must call m.Ack() once the
// message has been applied.
func (nc *NATSClient) SubscribeQueue(subject, queue string, handler stan.MsgHandler) (stan.Subscription, error) {
	if !nc.Connected() {
		return nil, fmt.Errorf("subscribe to %s: not connected", subject)
	}

	sub, err := nc.conn.QueueSubscribe(subject, queue, handler,
		stan.DurableName(subject+"-"+queue+"-durable"),
		stan.SetManualAckMode(),
		stan.AckWait(30*time.Second),
		stan.MaxInflight(1))
	if err != nil {
		return nil, fmt.Errorf("failed to queue subscribe to subject %s: %w", subject, err)
	}

	slog.Info("Subscribed to subject", "subject", subject, "queue", queue)
	return sub, nil
}

func (nc *NATSClient) Close() error {
	if nc.Connected() {
		return nc.conn.Close()
	}
	return nil
}
