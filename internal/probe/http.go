package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
)

const maxBodyScan = 1 << 20

// HTTPProbe calls a restored service endpoint and checks the status code and,
// optionally, the response body. With a Body it also serves as the webhook
// behind http post-recovery actions.
type HTTPProbe struct {
	name    string
	target  string
	method  string
	url     string
	body    string
	headers map[string]string
	status  int
	pattern *regexp.Regexp
	client  *http.Client
}

// HTTPProbeConfig holds construction parameters for HTTPProbe
type HTTPProbeConfig struct {
	Name           string
	Target         string
	URL            string
	Method         string
	Body           string
	ExpectedStatus int
	Timeout        time.Duration
	BodyPattern    string
	Headers        map[string]string
}

// NewHTTPProbe validates cfg. Method defaults to GET, or POST when a body is
// set; the expected status defaults to 200.
func NewHTTPProbe(cfg HTTPProbeConfig) (*HTTPProbe, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http probe %s: url is required", cfg.Name)
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
		if cfg.Body != "" {
			method = http.MethodPost
		}
	}
	status := cfg.ExpectedStatus
	if status == 0 {
		status = http.StatusOK
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	p := &HTTPProbe{
		name:    cfg.Name,
		target:  cfg.Target,
		method:  method,
		url:     cfg.URL,
		body:    cfg.Body,
		headers: cfg.Headers,
		status:  status,
		client:  &http.Client{Timeout: timeout},
	}
	if cfg.BodyPattern != "" {
		pat, err := regexp.Compile(cfg.BodyPattern)
		if err != nil {
			return nil, fmt.Errorf("http probe %s: body pattern: %w", cfg.Name, err)
		}
		p.pattern = pat
	}
	return p, nil
}

func (p *HTTPProbe) Name() string           { return p.name }
func (p *HTTPProbe) Kind() domain.ProbeType { return domain.ProbeTypeHTTP }

func (p *HTTPProbe) Check(ctx context.Context) (*Result, error) {
	var body io.Reader
	if p.body != "" {
		body = strings.NewReader(p.body)
	}
	req, err := http.NewRequestWithContext(ctx, p.method, p.url, body)
	if err != nil {
		return nil, fmt.Errorf("http probe %s: %w", p.name, err)
	}
	if p.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http probe %s: %w", p.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	detail := map[string]any{
		"method":          p.method,
		"url":             p.url,
		"status_code":     resp.StatusCode,
		"expected_status": p.status,
	}
	healthy := resp.StatusCode == p.status
	if healthy && p.pattern != nil {
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyScan))
		if err != nil {
			return nil, fmt.Errorf("http probe %s: read body: %w", p.name, err)
		}
		healthy = p.pattern.Match(data)
		detail["body_match"] = healthy
	}

	res := newResult(p.name, p.Kind(), p.target, healthy, detail)
	res.Latency = time.Since(start)
	return res, nil
}
