// Package feed publishes the store's realtime change events over
// NATS: scan status transitions and new recommendations. Downstream
// consumers (dashboards, notifiers) subscribe to the subjects; the
// scanner never waits on them.
package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Subject suffixes under the configured prefix.
const (
	subjectScanStatus     = "scans.status"
	subjectRecommendation = "recs.new"
)

// Config configures the feed publisher.
type Config struct {
	URL    string
	Prefix string // subject prefix, default "cryptooracle"
}

// ScanStatusEvent announces a scan run transition.
type ScanStatusEvent struct {
	RunID        uuid.UUID `json:"run_id"`
	Status       string    `json:"status"`
	ScanType     string    `json:"scan_type"`
	TotalCoins   int       `json:"total_coins"`
	TotalSignals int       `json:"total_signals"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// RecommendationEvent announces a freshly persisted recommendation.
type RecommendationEvent struct {
	RunID            uuid.UUID `json:"run_id"`
	RecommendationID uuid.UUID `json:"recommendation_id"`
	Ticker           string    `json:"ticker"`
	Coin             string    `json:"coin"`
	Direction        string    `json:"direction"`
	Confidence       float64   `json:"confidence"`
	MarketRegime     string    `json:"market_regime"`
	At               time.Time `json:"at"`
}

// Publisher pushes change events to NATS. A nil Publisher is valid
// and drops every event, so callers never need to branch on whether
// the feed is wired.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// NewPublisher connects to NATS and returns a publisher. The
// connection reconnects indefinitely; transient broker outages cost
// events, not scans.
func NewPublisher(cfg Config) (*Publisher, error) {
	nc, err := nats.Connect(
		cfg.URL,
		nats.Name("cryptooracle-scanner"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("nats_url", cfg.URL).Msg("Feed publisher connected")

	return NewWithConn(nc, cfg.Prefix), nil
}

// NewWithConn wraps an existing connection. Tests pass a connection
// to an embedded server.
func NewWithConn(nc *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = "cryptooracle"
	}
	return &Publisher{nc: nc, prefix: prefix}
}

// PublishScanStatus emits a scan transition. Best-effort: a publish
// failure is logged, never returned to the scan path.
func (p *Publisher) PublishScanStatus(ev ScanStatusEvent) {
	p.publish(subjectScanStatus, ev)
}

// PublishRecommendation emits a recommendation insert.
func (p *Publisher) PublishRecommendation(ev RecommendationEvent) {
	p.publish(subjectRecommendation, ev)
}

func (p *Publisher) publish(suffix string, ev any) {
	if p == nil || p.nc == nil {
		return
	}

	subject := p.prefix + "." + suffix
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to encode feed event")
		return
	}

	if err := p.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish feed event")
	}
}

// Flush pushes buffered events to the broker. Called on shutdown.
func (p *Publisher) Flush(timeout time.Duration) error {
	if p == nil || p.nc == nil {
		return nil
	}
	return p.nc.FlushTimeout(timeout)
}

// Close flushes and drops the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	_ = p.nc.FlushTimeout(2 * time.Second)
	p.nc.Close()
}
