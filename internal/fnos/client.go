package fnos

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

const (
	defaultTimeout = 10 * time.Second

	// Breaker tuning: trip after three consecutive transport failures,
	// probe again after breakerCooldown.
	breakerFailures = 3
	breakerCooldown = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	// Host is the appliance address, either host:port or a full URL.
	// A bare host:port is dialled over plain HTTP.
	Host string

	User     string
	Password string

	// Timeout bounds every single API call. Zero means defaultTimeout.
	Timeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification for
	// HTTPS appliances with self-signed certificates.
	InsecureSkipVerify bool
}

// Client issues the read calls the exporter polls. All methods are safe for
// concurrent use; session state is owned by the embedded SessionManager and
// transport failures are fenced by a circuit breaker so a dead appliance
// fails fast instead of holding every cycle for a full timeout.
type Client struct {
	http     *resty.Client
	breaker  *gobreaker.CircuitBreaker
	sessions *SessionManager
	user     string
	password string
}

// NewClient builds a Client for the given appliance. No network I/O happens
// until the first fetch; login is lazy.
func NewClient(opts Options) *Client {
	base := opts.Host
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	hc := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(timeout)
	if opts.InsecureSkipVerify {
		hc.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // user-configured
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fnos-api",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("fnos: circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	c := &Client{
		http:     hc,
		breaker:  cb,
		user:     opts.User,
		password: opts.Password,
	}
	c.sessions = newSessionManager(c.doLogin)
	return c
}

// Sessions exposes the session manager, mainly so callers can reset auth
// state in tests.
func (c *Client) Sessions() *SessionManager { return c.sessions }

// FetchUptime returns the open key→value uptime bag.
func (c *Client) FetchUptime(ctx context.Context) (UptimeInfo, error) {
	env, err := c.get(ctx, "uptime", "/v2/sysinfo/uptime", nil)
	if err != nil {
		return nil, err
	}
	var bag UptimeInfo
	if err := json.Unmarshal(env.Data, &bag); err != nil {
		return nil, &MalformedResponseError{Op: "uptime", Err: err}
	}
	return bag, nil
}

// FetchDiskInventory returns the disk inventory. Records without a device
// name are dropped and logged — they cannot be joined or labeled.
func (c *Client) FetchDiskInventory(ctx context.Context) ([]DiskRecord, error) {
	env, err := c.get(ctx, "disk_inventory", "/v2/store/disks", map[string]string{"no_hot_spare": "1"})
	if err != nil {
		return nil, err
	}
	var data diskList[DiskRecord]
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &MalformedResponseError{Op: "disk_inventory", Err: err}
	}
	out := data.Disk[:0]
	for _, d := range data.Disk {
		if strings.TrimSpace(d.Name) == "" {
			slog.Warn("fnos: dropping inventory record without device name", "model", d.Model)
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// FetchDiskTelemetry returns per-disk runtime telemetry. Records without a
// device name are dropped and logged.
func (c *Client) FetchDiskTelemetry(ctx context.Context) ([]DiskTelemetry, error) {
	env, err := c.get(ctx, "disk_telemetry", "/v2/resmon/disk", nil)
	if err != nil {
		return nil, err
	}
	var data diskList[DiskTelemetry]
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &MalformedResponseError{Op: "disk_telemetry", Err: err}
	}
	out := data.Disk[:0]
	for _, d := range data.Disk {
		if strings.TrimSpace(d.Name) == "" {
			slog.Warn("fnos: dropping telemetry record without device name")
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// FetchDiskSmart returns the SMART attribute bag for one device.
func (c *Client) FetchDiskSmart(ctx context.Context, device string) (SmartInfo, error) {
	env, err := c.get(ctx, "disk_smart", "/v2/store/smart", map[string]string{"name": device})
	if err != nil {
		return nil, err
	}
	var data smartData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &MalformedResponseError{Op: "disk_smart", Err: err}
	}
	if data.Smart == nil {
		return nil, &MalformedResponseError{Op: "disk_smart", Err: fmt.Errorf("no smart payload for %q", device)}
	}
	return data.Smart, nil
}

// get performs one authenticated GET. On an auth failure the session is
// invalidated and the call retried exactly once after a re-login; any other
// failure propagates as-is. It never returns an empty success.
func (c *Client) get(ctx context.Context, op, path string, query map[string]string) (*envelope, error) {
	sess, err := c.sessions.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	env, err := c.authedGet(ctx, op, path, query, sess)
	if err == nil || !IsAuth(err) {
		return env, err
	}

	slog.Info("fnos: session rejected, re-logging in", "op", op)
	c.sessions.Invalidate(sess)
	sess, err = c.sessions.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return c.authedGet(ctx, op, path, query, sess)
}

func (c *Client) authedGet(ctx context.Context, op, path string, query map[string]string, sess Session) (*envelope, error) {
	return c.roundTrip(op, func() (*resty.Response, error) {
		req := c.http.R().
			SetContext(ctx).
			SetHeader("X-Fnos-Token", sess.Token).
			SetQueryParam("reqid", uuid.NewString())
		for k, v := range query {
			req.SetQueryParam(k, v)
		}
		return req.Get(path)
	})
}

// doLogin is the loginFunc handed to the SessionManager.
func (c *Client) doLogin(ctx context.Context) (Session, error) {
	env, err := c.roundTrip("login", func() (*resty.Response, error) {
		return c.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]string{
				"user":     c.user,
				"password": c.password,
				"reqid":    uuid.NewString(),
			}).
			Post("/v2/login")
	})
	if err != nil {
		return Session{}, err
	}

	var ld loginData
	if err := json.Unmarshal(env.Data, &ld); err != nil {
		return Session{}, &MalformedResponseError{Op: "login", Err: err}
	}
	if ld.Token == "" {
		return Session{}, &MalformedResponseError{Op: "login", Err: errors.New("login response without token")}
	}
	return Session{Token: ld.Token, IssuedAt: time.Now()}, nil
}

// roundTrip sends one request through the circuit breaker and classifies the
// outcome. Only transport-level failures count against the breaker; auth and
// shape problems mean the appliance is reachable and are passed through
// without tripping it.
func (c *Client) roundTrip(op string, send func() (*resty.Response, error)) (*envelope, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		resp, err := send()
		if err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}

		code := resp.StatusCode()
		switch {
		case code >= 500:
			return nil, &TransportError{Op: op, Err: fmt.Errorf("status %d", code)}
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return &AuthError{Op: op, Err: fmt.Errorf("status %d", code)}, nil
		case code != http.StatusOK:
			return &MalformedResponseError{Op: op, Err: fmt.Errorf("unexpected status %d", code)}, nil
		}

		var env envelope
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			return &MalformedResponseError{Op: op, Err: err}, nil
		}
		if env.Result != "succ" {
			switch env.Errno {
			case errnoSessionExpired, errnoBadCredentials:
				return &AuthError{Op: op, Err: fmt.Errorf("errno %d", env.Errno)}, nil
			default:
				return &MalformedResponseError{Op: op,
					Err: fmt.Errorf("result %q, errno %d", env.Result, env.Errno)}, nil
			}
		}
		return &env, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &TransportError{Op: op, Err: err}
		}
		return nil, err
	}

	switch v := res.(type) {
	case *envelope:
		return v, nil
	case error:
		return nil, v
	default:
		return nil, &MalformedResponseError{Op: op, Err: fmt.Errorf("unexpected round-trip result %T", res)}
	}
}
