package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPSourceConfig configures one vendor compliance API (Zoya- or
// Musaffa-style services expose equivalent endpoints).
type HTTPSourceConfig struct {
	Name    string        `yaml:"name" validate:"required"`
	BaseURL string        `yaml:"base_url" validate:"required,url"`
	APIKey  string        `yaml:"-"`
	Timeout time.Duration `yaml:"timeout"`
}

// complianceResponse is the JSON contract the gateway expects. Vendor
// adapters outside the core translate native formats to this shape.
type complianceResponse struct {
	Ticker     string  `json:"ticker"`
	Status     string  `json:"status"` // "compliant" | "non_compliant" | "unknown"
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category,omitempty"`
	Detail     string  `json:"detail,omitempty"`
}

// HTTPSource queries a vendor compliance API.
type HTTPSource struct {
	name   string
	client *resty.Client
}

// NewHTTPSource builds a source from config.
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &HTTPSource{name: cfg.Name, client: client}
}

func (s *HTTPSource) Name() string { return s.name }

// Check queries /v1/compliance/{ticker}. Transport and server errors are
// returned as errors; a well-formed "unknown" is a valid verdict.
func (s *HTTPSource) Check(ctx context.Context, ticker string) (Verdict, error) {
	var body complianceResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetResult(&body).
		SetPathParam("ticker", ticker).
		Get("/v1/compliance/{ticker}")
	if err != nil {
		return Verdict{}, fmt.Errorf("source %s: %w", s.name, err)
	}
	if resp.IsError() {
		return Verdict{}, fmt.Errorf("source %s: status %d", s.name, resp.StatusCode())
	}

	switch body.Status {
	case "compliant":
		return Verdict{Result: VerdictCompliant, Confidence: body.Confidence}, nil
	case "non_compliant":
		return Verdict{
			Result:     VerdictNonCompliant,
			Confidence: body.Confidence,
			Reason:     MapVendorReason(body.Category),
			Detail:     firstNonEmpty(body.Detail, body.Category),
		}, nil
	default:
		return Verdict{Result: VerdictUnknown, Confidence: body.Confidence, Detail: body.Detail}, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

