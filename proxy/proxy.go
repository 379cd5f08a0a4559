// Package proxy provides the credential-injecting proxy between browser chat
// clients and an OpenAI-compatible completion API.
package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/studio/pkg/llm"
)

// maxErrorBody bounds how much of an upstream error body is echoed back.
const maxErrorBody = 4096

// Proxy accepts chat requests from browsers, injects the server-held
// credential and relays the upstream response body unchanged.
type Proxy struct {
	config     Config
	origins    originList
	logger     *zap.Logger
	httpClient *http.Client
	server     *fiber.App
}

// chatBody is the accepted request shape. Pointer fields distinguish a
// missing value from a zero value.
type chatBody struct {
	Model       string        `json:"model"`
	Temperature *float64      `json:"temperature"`
	Messages    []llm.Message `json:"messages"`
	Stream      *bool         `json:"stream"`
}

type pingResponse struct {
	OK     bool   `json:"ok"`
	Origin string `json:"origin,omitempty"`
}

// New creates a new Proxy.
func New(config Config, logger *zap.Logger) (*Proxy, error) {
	if config.UpstreamURL == "" {
		return nil, errors.New("upstream URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults()

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})

	p := &Proxy{
		config:     config,
		logger:     logger,
		server:     app,
		httpClient: &http.Client{},
	}
	p.origins.store(config.AllowedOrigins)

	app.All("/api/chat", p.cors("POST, OPTIONS"), p.handleChat)
	app.All("/api/ping", p.cors("GET, POST, OPTIONS"), p.handlePing)

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	return p, nil
}

// Run starts the proxy server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		zap.String("listen", p.config.ListenAddr),
		zap.String("upstream", p.config.UpstreamURL),
		zap.Int("allowed_origins", len(p.config.AllowedOrigins)),
	)

	return p.server.Listen(p.config.ListenAddr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (p *Proxy) Shutdown(ctx context.Context) error {
	return p.server.ShutdownWithContext(ctx)
}

// SetAllowedOrigins replaces the CORS allow-list. Safe for concurrent use.
func (p *Proxy) SetAllowedOrigins(origins []string) {
	p.origins.store(origins)
	p.logger.Info("allowed origins updated", zap.Strings("origins", origins))
}

func (p *Proxy) apiKey() string {
	if p.config.APIKey != "" {
		return p.config.APIKey
	}
	return os.Getenv(p.config.APIKeyEnv)
}

// handleChat fills in request defaults, forwards the request upstream with the
// credential attached and relays the raw response body back.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	if c.Method() != fiber.MethodPost {
		return c.Status(fiber.StatusMethodNotAllowed).JSON(llm.ErrorResponse{Error: "Method not allowed"})
	}
	startTime := time.Now()

	var body chatBody
	if raw := bytes.TrimSpace(c.Body()); len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			p.logger.Error("failed to parse request", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
		}
	}
	req := p.upstreamRequest(body)

	key := p.apiKey()
	if key == "" {
		p.logger.Error("upstream credential missing", zap.String("env", p.config.APIKeyEnv))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: fmt.Sprintf("Missing %s in environment variables", p.config.APIKeyEnv),
		})
	}

	p.logger.Debug("received chat request",
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
		zap.Bool("stream", req.Stream),
	)

	ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)

	httpResp, err := p.forward(ctx, req, key)
	if err != nil {
		cancel()
		p.logger.Error("upstream request failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		defer cancel()
		defer httpResp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		p.logger.Error("upstream returned error",
			zap.Int("status", httpResp.StatusCode),
			zap.String("body", truncate(string(errBody), 200)),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{
			Error: fmt.Sprintf("upstream error %d: %s", httpResp.StatusCode, string(errBody)),
		})
	}

	contentType := httpResp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = fiber.MIMEApplicationJSON
	}
	c.Set(fiber.HeaderContentType, contentType)

	if !req.Stream {
		defer cancel()
		defer httpResp.Body.Close()
		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			p.logger.Error("failed to read upstream response", zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
		}
		p.logger.Info("chat relayed",
			zap.String("model", req.Model),
			zap.Int("bytes", len(respBody)),
			zap.Duration("duration", time.Since(startTime)),
		)
		return c.Status(fiber.StatusOK).Send(respBody)
	}

	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Status(fiber.StatusOK)

	// The writer runs after this handler returns, so it owns the upstream body
	// and the request context from here on.
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer httpResp.Body.Close()

		written, err := relay(w, httpResp.Body)
		if err != nil {
			p.logger.Warn("stream relay interrupted",
				zap.Int64("bytes", written),
				zap.Error(err),
			)
			return
		}
		p.logger.Info("chat stream relayed",
			zap.String("model", req.Model),
			zap.Int64("bytes", written),
			zap.Duration("duration", time.Since(startTime)),
		)
	}))

	return nil
}

// upstreamRequest applies the request defaults.
func (p *Proxy) upstreamRequest(body chatBody) llm.ChatRequest {
	req := llm.ChatRequest{
		Model:       body.Model,
		Temperature: body.Temperature,
		Messages:    body.Messages,
	}
	if req.Model == "" {
		req.Model = p.config.DefaultModel
	}
	if req.Temperature == nil {
		req.Temperature = llm.Float64(p.config.DefaultTemperature)
	}
	if req.Messages == nil {
		req.Messages = []llm.Message{}
	}
	if body.Stream != nil {
		req.Stream = *body.Stream
	}
	return req
}

// forward sends req upstream with the bearer credential.
func (p *Proxy) forward(ctx context.Context, req llm.ChatRequest, key string) (*http.Response, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	p.logger.Debug("forwarding request to upstream",
		zap.String("url", p.config.UpstreamURL),
		zap.Int("body_size", len(reqBody)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.UpstreamURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return httpResp, nil
}

// relay copies src to w chunk by chunk, flushing after every read so frames
// reach the client as soon as upstream produces them.
func relay(w *bufio.Writer, src io.Reader) (int64, error) {
	var written int64
	buf := make([]byte, 4096)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("write to client: %w", err)
			}
			if err := w.Flush(); err != nil {
				return written, fmt.Errorf("flush to client: %w", err)
			}
			written += int64(n)
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("read upstream: %w", readErr)
		}
	}
}

func (p *Proxy) handlePing(c *fiber.Ctx) error {
	switch c.Method() {
	case fiber.MethodGet, fiber.MethodPost:
		return c.JSON(pingResponse{OK: true, Origin: c.Get(fiber.HeaderOrigin)})
	default:
		return c.Status(fiber.StatusMethodNotAllowed).JSON(llm.ErrorResponse{Error: "Method not allowed"})
	}
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
