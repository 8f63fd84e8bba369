package extraction

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/coverdesk/coverdesk/internal/model"
	"github.com/coverdesk/coverdesk/internal/resilience"
	"github.com/coverdesk/coverdesk/pkg/anthropic"
)

// systemPrompt instructs the model to read a certificate of insurance and
// return structured JSON. It is static, so it carries a cache breakpoint.
const systemPrompt = `You are an insurance analyst reading Certificates of Insurance (COI, typically ACORD 25 forms).

Extract the certificate's contents into JSON with this exact schema:
{
  "insured_name": "<name of the insured>",
  "producer": "<producer/agency name>",
  "effective_date": "YYYY-MM-DD or null",
  "expiration_date": "YYYY-MM-DD or null",
  "coverages": [
    {
      "type": "<one of: general_liability, auto_liability, workers_comp, umbrella, professional_liability, pollution_liability>",
      "amount": <per-occurrence limit in US dollars, or null>,
      "aggregate": <aggregate limit in US dollars, or null>,
      "endorsements": ["<endorsement names, e.g. additional_insured, waiver_of_subrogation>"],
      "effective_date": "YYYY-MM-DD or null",
      "expiration_date": "YYYY-MM-DD or null"
    }
  ]
}

Rules:
- Only include coverage lines actually present on the certificate.
- Use null for any value you cannot find. Never guess limits or dates.
- Dollar amounts are plain numbers with no currency symbols or commas.
- Coverage-line dates are only set when they differ from the certificate-level policy period.
- Return ONLY the JSON object, no commentary.`

// Config controls the extractor's model and throughput settings.
type Config struct {
	Model             string
	MaxTokens         int64
	RequestsPerMinute float64
}

// Extractor turns raw certificate text into a structured model.Certificate
// using the Anthropic API.
type Extractor struct {
	client   anthropic.Client
	cfg      Config
	limiter  *rate.Limiter
	retryCfg resilience.RetryConfig
}

// New creates an Extractor. RequestsPerMinute <= 0 disables rate limiting.
func New(client anthropic.Client, cfg Config) *Extractor {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60.0)
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "extract_certificate")

	return &Extractor{
		client:   client,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		retryCfg: retryCfg,
	}
}

// certificatePayload mirrors the JSON schema the model is asked to produce.
// Amounts arrive as JSON numbers and are rounded to whole dollars here; the
// rest of the system only ever sees integral model.Money values.
type certificatePayload struct {
	InsuredName    string            `json:"insured_name"`
	Producer       string            `json:"producer"`
	EffectiveDate  string            `json:"effective_date"`
	ExpirationDate string            `json:"expiration_date"`
	Coverages      []coveragePayload `json:"coverages"`
}

type coveragePayload struct {
	Type           string   `json:"type"`
	Amount         *float64 `json:"amount"`
	Aggregate      *float64 `json:"aggregate"`
	Endorsements   []string `json:"endorsements"`
	EffectiveDate  string   `json:"effective_date"`
	ExpirationDate string   `json:"expiration_date"`
}

// Extract parses the given certificate text and returns the structured
// certificate. The returned certificate has no ID or EntityID; the caller
// assigns those before persisting.
func (e *Extractor) Extract(ctx context.Context, documentText string) (*model.Certificate, error) {
	if strings.TrimSpace(documentText) == "" {
		return nil, eris.New("extraction: empty document text")
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extraction: rate limit wait")
	}

	req := anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: "Certificate text:\n\n" + documentText},
		},
	}

	resp, err := resilience.DoVal(ctx, e.retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "extraction: create message")
	}

	resp.Usage.LogCost(e.cfg.Model, "extract_certificate")

	cert, err := parseCertificate(resp.Text())
	if err != nil {
		return nil, err
	}
	cert.UploadedAt = time.Now().UTC()

	zap.L().Info("certificate extracted",
		zap.String("component", "extraction"),
		zap.String("insured_name", cert.InsuredName),
		zap.Int("coverage_lines", len(cert.Coverages)),
	)

	return cert, nil
}

// parseCertificate decodes the model's JSON response into a Certificate.
func parseCertificate(text string) (*model.Certificate, error) {
	cleaned := cleanJSON(text)

	var payload certificatePayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, eris.Wrap(err, "extraction: parse response JSON")
	}

	cert := &model.Certificate{
		InsuredName:    payload.InsuredName,
		Producer:       payload.Producer,
		EffectiveDate:  parseDatePtr(payload.EffectiveDate),
		ExpirationDate: parseDatePtr(payload.ExpirationDate),
	}

	for _, c := range payload.Coverages {
		coverage, ok := normalizeCoverageType(c.Type)
		if !ok {
			zap.L().Warn("skipping unrecognized coverage type",
				zap.String("component", "extraction"),
				zap.String("type", c.Type),
			)
			continue
		}
		cert.Coverages = append(cert.Coverages, model.ExtractedCoverage{
			Coverage:       coverage,
			Amount:         toMoney(c.Amount),
			Aggregate:      toMoney(c.Aggregate),
			Endorsements:   c.Endorsements,
			EffectiveDate:  parseDatePtr(c.EffectiveDate),
			ExpirationDate: parseDatePtr(c.ExpirationDate),
		})
	}

	return cert, nil
}

// coverageAliases maps common certificate wording to canonical coverage types.
var coverageAliases = map[string]model.CoverageType{
	"general_liability":            model.CoverageGeneralLiability,
	"commercial_general_liability": model.CoverageGeneralLiability,
	"auto_liability":               model.CoverageAutoLiability,
	"automobile_liability":         model.CoverageAutoLiability,
	"workers_comp":                 model.CoverageWorkersComp,
	"workers_compensation":         model.CoverageWorkersComp,
	"umbrella":                     model.CoverageUmbrella,
	"umbrella_liability":           model.CoverageUmbrella,
	"excess_liability":             model.CoverageUmbrella,
	"professional_liability":       model.CoverageProfessionalLiability,
	"errors_and_omissions":         model.CoverageProfessionalLiability,
	"pollution_liability":          model.CoveragePollutionLiability,
	"environmental_liability":      model.CoveragePollutionLiability,
}

func normalizeCoverageType(raw string) (model.CoverageType, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	t, ok := coverageAliases[key]
	return t, ok
}

func toMoney(v *float64) *model.Money {
	if v == nil || *v < 0 {
		return nil
	}
	m := model.Money(math.Round(*v))
	return &m
}

func parseDatePtr(s string) *model.Date {
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		zap.L().Warn("skipping unparseable date",
			zap.String("component", "extraction"),
			zap.String("value", s),
		)
		return nil
	}
	return &d
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
