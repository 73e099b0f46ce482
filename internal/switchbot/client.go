package switchbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"

	"smartgateway/internal/metrics"
	"smartgateway/internal/models"
)

const (
	DefaultBaseURL    = "https://api.switch-bot.com/v1.1"
	DefaultMaxRetries = 3

	statusOK         = 100
	defaultRetryBase = time.Second
	maxRetryDelay    = 30 * time.Second
)

var (
	ErrMissingDeviceID = errors.New("device id is required")
	ErrMissingCommand  = errors.New("command is required")
	ErrMissingSceneID  = errors.New("scene id is required")
)

// APIError is a non-success response from the cloud API
type APIError struct {
	HTTPStatus int
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("switchbot api error: http %d, status %d: %s", e.HTTPStatus, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("switchbot api error: http %d: %s", e.HTTPStatus, e.Message)
}

func (e *APIError) retryable() bool {
	return e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= 500
}

// TTLs controls how long each response kind stays cached
type TTLs struct {
	Devices time.Duration
	Status  time.Duration
	Scenes  time.Duration
}

// DefaultTTLs are the cache lifetimes used when none are configured
var DefaultTTLs = TTLs{Devices: 10 * time.Minute, Status: 30 * time.Second, Scenes: 30 * time.Minute}

// Client talks to the SwitchBot cloud API v1.1
type Client struct {
	token      string
	secret     string
	baseURL    string
	httpClient *http.Client
	cache      Cache
	limiter    *Limiter
	ttl        TTLs
	maxRetries int
	retryBase  time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithCache(cache Cache) Option {
	return func(c *Client) {
		if cache != nil {
			c.cache = cache
		}
	}
}

func WithLimiter(l *Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithTTLs overrides cache lifetimes; zero fields keep their default
func WithTTLs(t TTLs) Option {
	return func(c *Client) {
		if t.Devices > 0 {
			c.ttl.Devices = t.Devices
		}
		if t.Status > 0 {
			c.ttl.Status = t.Status
		}
		if t.Scenes > 0 {
			c.ttl.Scenes = t.Scenes
		}
	}
}

// WithRetry sets the retry count and the first backoff delay
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
		if base > 0 {
			c.retryBase = base
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a SwitchBot client with an in-memory cache and the
// default rate limits
func NewClient(token, secret string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		secret:     secret,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      NewMemoryCache(),
		limiter:    NewLimiter(DefaultLimits),
		ttl:        DefaultTTLs,
		maxRetries: DefaultMaxRetries,
		retryBase:  defaultRetryBase,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "switchbot")
	return c
}

// GetDevices lists physical devices and infrared remotes
func (c *Client) GetDevices(ctx context.Context) (*models.DeviceList, error) {
	var out models.DeviceList
	if err := c.cachedGet(ctx, "devices", "/devices", keyDevices, c.ttl.Devices, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetDeviceStatus returns the device status, served from cache when fresh
func (c *Client) GetDeviceStatus(ctx context.Context, deviceID string) (models.DeviceStatus, error) {
	return c.deviceStatus(ctx, deviceID, false)
}

// RefreshDeviceStatus bypasses the cache and stores the fresh status
func (c *Client) RefreshDeviceStatus(ctx context.Context, deviceID string) (models.DeviceStatus, error) {
	return c.deviceStatus(ctx, deviceID, true)
}

func (c *Client) deviceStatus(ctx context.Context, deviceID string, force bool) (models.DeviceStatus, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, ErrMissingDeviceID
	}
	var out models.DeviceStatus
	path := "/devices/" + url.PathEscape(deviceID) + "/status"
	if err := c.cachedGet(ctx, "status", path, statusKey(deviceID), c.ttl.Status, force, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = models.DeviceStatus{}
	}
	return out, nil
}

// SendCommand sends a command. A nil or empty parameter is sent as "default".
func (c *Client) SendCommand(ctx context.Context, deviceID, command string, parameter any) (*models.CommandResult, error) {
	if strings.TrimSpace(deviceID) == "" {
		return nil, ErrMissingDeviceID
	}
	if strings.TrimSpace(command) == "" {
		return nil, ErrMissingCommand
	}
	if isEmptyParameter(parameter) {
		parameter = "default"
	}
	body, err := json.Marshal(map[string]any{
		"command":     command,
		"parameter":   parameter,
		"commandType": "command",
	})
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}

	res, err := c.write(ctx, "command", "/devices/"+url.PathEscape(deviceID)+"/commands", body)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, statusKey(deviceID), false)
	return res, nil
}

// GetScenes lists manual scenes
func (c *Client) GetScenes(ctx context.Context) ([]models.Scene, error) {
	var out []models.Scene
	if err := c.cachedGet(ctx, "scenes", "/scenes", keyScenes, c.ttl.Scenes, false, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Scene{}
	}
	return out, nil
}

// ExecuteScene runs a manual scene. Every cached status is dropped since a
// scene may touch any device.
func (c *Client) ExecuteScene(ctx context.Context, sceneID string) (*models.CommandResult, error) {
	if strings.TrimSpace(sceneID) == "" {
		return nil, ErrMissingSceneID
	}
	res, err := c.write(ctx, "scene", "/scenes/"+url.PathEscape(sceneID)+"/execute", nil)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, keyStatusPrefix, true)
	return res, nil
}

// Stats reports the daily request budget
func (c *Client) Stats() LimiterStats {
	return c.limiter.Stats()
}

func (c *Client) cachedGet(ctx context.Context, endpoint, path, key string, ttl time.Duration, force bool, out any) error {
	if !force {
		b, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		if ok && json.Unmarshal(b, out) == nil {
			metrics.SwitchBotCacheHits.Inc()
			return nil
		}
	}

	env, err := c.request(ctx, endpoint, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if len(env.Body) == 0 || string(env.Body) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Body, out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	if err := c.cache.Set(ctx, key, env.Body, ttl); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return nil
}

func (c *Client) write(ctx context.Context, endpoint, path string, body []byte) (*models.CommandResult, error) {
	env, err := c.request(ctx, endpoint, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	res := &models.CommandResult{StatusCode: env.StatusCode, Message: env.Message}
	if len(env.Body) > 0 {
		var decoded any
		if json.Unmarshal(env.Body, &decoded) == nil {
			res.Body = decoded
		}
	}
	return res, nil
}

func (c *Client) invalidate(ctx context.Context, key string, prefix bool) {
	var err error
	if prefix {
		err = c.cache.DeletePrefix(ctx, key)
	} else {
		err = c.cache.Delete(ctx, key)
	}
	if err != nil {
		c.logger.Warn("cache invalidation failed", "key", key, "error", err)
	}
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Body       json.RawMessage `json:"body"`
}

// request sends one signed call, retrying transient failures with
// exponential backoff
func (c *Client) request(ctx context.Context, endpoint, method, path string, body []byte) (*envelope, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxRetryDelay

	attempt := 0
	env, err := backoff.Retry(ctx, func() (*envelope, error) {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		env, err := c.once(ctx, method, path, body)
		if err != nil && !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return env, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.logger.Warn("retrying request", "endpoint", endpoint, "attempt", attempt, "delay", d, "error", err)
		}),
	)
	if err != nil {
		metrics.SwitchBotRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, err
	}
	metrics.SwitchBotRequests.WithLabelValues(endpoint, "ok").Inc()
	return env, nil
}

func (c *Client) once(ctx context.Context, method, path string, body []byte) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	setAuthHeaders(req.Header, c.token, c.secret, c.now())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{HTTPStatus: resp.StatusCode, StatusCode: env.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	if env.StatusCode != statusOK {
		return nil, &APIError{HTTPStatus: resp.StatusCode, StatusCode: env.StatusCode, Message: env.Message}
	}
	return &env, nil
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.retryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isEmptyParameter(p any) bool {
	switch v := p.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case map[string]any:
		return len(v) == 0
	}
	return false
}
