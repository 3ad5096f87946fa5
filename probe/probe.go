// Package probe tests whether a configured endpoint is reachable
// before an entity is saved or enabled. Probes run against operator
// input, so they are rate limited to keep a stuck retry loop in the
// console from hammering a production broker or database.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5"
	"golang.org/x/time/rate"

	"github.com/mqdeck/mqdeck/observability"
)

// Result is one probe outcome. Err carries the failure message for
// display; operators see it, so it stays human-readable.
type Result struct {
	Target  string        `json:"target"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latencyMs"`
	Err     string        `json:"error,omitempty"`
}

// MarshalJSON reports latency in whole milliseconds. Duration would
// otherwise serialize as nanoseconds under a field named latencyMs.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return json.Marshal(struct {
		plain
		Latency int64 `json:"latencyMs"`
	}{plain(r), r.Latency.Milliseconds()})
}

// ErrRateLimited is returned when probes fire faster than allowed.
var ErrRateLimited = errors.New("probe rate limit exceeded, retry shortly")

const (
	defaultTimeout = 5 * time.Second
	probeRate      = rate.Limit(1) // one probe per second
	probeBurst     = 3
)

// Prober runs connectivity probes.
type Prober struct {
	limiter *rate.Limiter
	timeout time.Duration
	log     *slog.Logger

	// Injectable for tests.
	dialMQTT func(ctx context.Context, brokerURL, clientID string) error
	pingPG   func(ctx context.Context, dsn string) error
}

// Option configures a Prober.
type Option func(*Prober)

// WithTimeout overrides the per-probe timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) { p.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Prober) { p.log = log }
}

// WithLimiter overrides the rate limiter (tests).
func WithLimiter(l *rate.Limiter) Option {
	return func(p *Prober) { p.limiter = l }
}

// New builds a Prober.
func New(opts ...Option) *Prober {
	p := &Prober{
		limiter:  rate.NewLimiter(probeRate, probeBurst),
		timeout:  defaultTimeout,
		log:      slog.Default(),
		dialMQTT: dialMQTT,
		pingPG:   pingPostgres,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Prober) run(ctx context.Context, target string, dial func(context.Context) error) Result {
	if !p.limiter.Allow() {
		observability.ProbeResults.WithLabelValues(target, "rate_limited").Inc()
		return Result{Target: target, Err: ErrRateLimited.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := dial(ctx)
	latency := time.Since(start)
	if err != nil {
		observability.ProbeResults.WithLabelValues(target, "fail").Inc()
		p.log.Info("probe failed", "target", target, "error", err)
		return Result{Target: target, Latency: latency, Err: err.Error()}
	}
	observability.ProbeResults.WithLabelValues(target, "ok").Inc()
	return Result{Target: target, OK: true, Latency: latency}
}

// MQTT dials a broker URL the way a bridge would and disconnects
// immediately on success.
func (p *Prober) MQTT(ctx context.Context, brokerURL, clientID string) Result {
	if clientID == "" {
		clientID = "mqdeck-probe"
	}
	return p.run(ctx, "mqtt", func(ctx context.Context) error {
		return p.dialMQTT(ctx, brokerURL, clientID)
	})
}

// Postgres translates a JDBC URL and pings the database.
func (p *Prober) Postgres(ctx context.Context, jdbcURL, user, password string) Result {
	dsn, err := TranslateJDBC(jdbcURL, user, password)
	if err != nil {
		observability.ProbeResults.WithLabelValues("postgres", "fail").Inc()
		return Result{Target: "postgres", Err: err.Error()}
	}
	return p.run(ctx, "postgres", func(ctx context.Context) error {
		return p.pingPG(ctx, dsn)
	})
}

func dialMQTT(ctx context.Context, brokerURL, clientID string) error {
	deadline, ok := ctx.Deadline()
	wait := 5 * time.Second
	if ok {
		wait = time.Until(deadline)
	}
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(wait).
		SetConnectRetry(false).
		SetAutoReconnect(false)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(wait) {
		client.Disconnect(0)
		return fmt.Errorf("connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s: %w", brokerURL, err)
	}
	client.Disconnect(250)
	return nil
}

func pingPostgres(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return conn.Ping(ctx)
}

// TranslateJDBC converts the JDBC form a logger is configured with
// (jdbc:postgresql://host:port/db) into a DSN pgx accepts, folding in
// the separately-stored credentials.
func TranslateJDBC(jdbcURL, user, password string) (string, error) {
	const prefix = "jdbc:postgresql://"
	if !strings.HasPrefix(jdbcURL, prefix) {
		return "", fmt.Errorf("unsupported JDBC URL %q: only jdbc:postgresql:// can be probed", jdbcURL)
	}
	u, err := url.Parse("postgres://" + strings.TrimPrefix(jdbcURL, prefix))
	if err != nil {
		return "", fmt.Errorf("parse JDBC URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("JDBC URL %q has no host", jdbcURL)
	}
	if user != "" {
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String(), nil
}
