package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/drorchestrator/backend-go/internal/domain"
)

var comparators = map[string]func(v, threshold float64) bool{
	">":  func(v, t float64) bool { return v > t },
	">=": func(v, t float64) bool { return v >= t },
	"<":  func(v, t float64) bool { return v < t },
	"<=": func(v, t float64) bool { return v <= t },
	"==": func(v, t float64) bool { return v == t },
	"!=": func(v, t float64) bool { return v != t },
}

// PromProbe runs an instant PromQL query against the restored target's
// metrics. Only the first series is compared unless AllSeries is set, in
// which case every series must satisfy the threshold.
type PromProbe struct {
	name       string
	target     string
	endpoint   string
	query      string
	comparator string
	threshold  float64
	allSeries  bool
	client     *http.Client
}

// PromProbeConfig holds construction parameters for PromProbe
type PromProbeConfig struct {
	Name       string
	Target     string
	Endpoint   string
	Query      string
	Comparator string
	Threshold  float64
	AllSeries  bool
	Timeout    time.Duration
}

// NewPromProbe creates a Prometheus query probe; the comparator defaults to ">"
func NewPromProbe(cfg PromProbeConfig) *PromProbe {
	if cfg.Comparator == "" {
		cfg.Comparator = ">"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &PromProbe{
		name:       cfg.Name,
		target:     cfg.Target,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		query:      cfg.Query,
		comparator: cfg.Comparator,
		threshold:  cfg.Threshold,
		allSeries:  cfg.AllSeries,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *PromProbe) Name() string           { return p.name }
func (p *PromProbe) Kind() domain.ProbeType { return domain.ProbeTypePrometheus }

type sample struct {
	Metric map[string]string  `json:"metric"`
	Value  [2]json.RawMessage `json:"value"`
}

type queryResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Data   struct {
		Result []sample `json:"result"`
	} `json:"data"`
}

func (p *PromProbe) Check(ctx context.Context) (*Result, error) {
	cmp, ok := comparators[p.comparator]
	if !ok {
		return nil, fmt.Errorf("prometheus probe %s: unsupported comparator %q", p.name, p.comparator)
	}

	samples, err := p.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("prometheus probe %s: %w", p.name, err)
	}

	detail := map[string]any{
		"query":        p.query,
		"comparator":   p.comparator,
		"threshold":    p.threshold,
		"result_count": len(samples),
	}
	if len(samples) == 0 {
		res := newResult(p.name, p.Kind(), p.target, false, detail)
		res.Error = fmt.Sprintf("%s: query returned no series", p.name)
		return res, nil
	}
	if !p.allSeries {
		samples = samples[:1]
	}

	values := make([]float64, 0, len(samples))
	var failing []string
	for _, s := range samples {
		v, err := sampleValue(s.Value[1])
		if err != nil {
			return nil, fmt.Errorf("prometheus probe %s: %w", p.name, err)
		}
		values = append(values, v)
		if !cmp(v, p.threshold) {
			failing = append(failing, fmt.Sprintf("%s=%g", seriesLabel(s.Metric), v))
		}
	}
	detail["value"] = values[0]
	if p.allSeries {
		detail["values"] = values
	}

	res := newResult(p.name, p.Kind(), p.target, len(failing) == 0, detail)
	if len(failing) > 0 {
		res.Error = fmt.Sprintf("%s: want %s %g, got %s", p.name, p.comparator, p.threshold, strings.Join(failing, ", "))
	}
	return res, nil
}

func (p *PromProbe) fetch(ctx context.Context) ([]sample, error) {
	u := p.endpoint + "/api/v1/query?" + url.Values{"query": {p.query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body queryResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if body.Status == "error" {
		return nil, fmt.Errorf("query failed (%d): %s", resp.StatusCode, body.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prometheus returned %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return body.Data.Result, nil
}

// Sample values are JSON strings: [ <unix time>, "<value>" ]
func sampleValue(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("parse value: %w", err)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float value: %w", err)
	}
	return v, nil
}

func seriesLabel(metric map[string]string) string {
	if len(metric) == 0 {
		return "{}"
	}
	pairs := make([]string, 0, len(metric))
	for k, v := range metric {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, v))
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ",") + "}"
}
