// Package gateway routes analysis requests to the selected provider tier and
// guarantees a structurally valid result on every path. Provider failures
// degrade to the mock tier; they never surface as errors to the caller.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evandepol/homewatch/analysis"
	"github.com/evandepol/homewatch/audit"
	"github.com/evandepol/homewatch/backoff"
	"github.com/evandepol/homewatch/llm"
	"github.com/evandepol/homewatch/telemetry"
	"github.com/evandepol/homewatch/types"
)

// Config carries the gateway's provider settings.
type Config struct {
	Model            string
	APIKey           string
	BaseURL          string
	Timeout          time.Duration
	InsightThreshold float64
	Pricing          analysis.PricingTable
}

// Gateway executes analysis requests against one of three tiers. The mock
// tier is always available; the online and local tiers may degrade to it.
type Gateway struct {
	cfg        Config
	normalizer *analysis.Normalizer
	backoff    *backoff.Controller
	trail      *audit.Trail
	logger     *telemetry.Logger

	online *llm.Client

	mu     sync.Mutex
	locals map[string]*llm.Client
}

// New creates a gateway. A missing API key leaves the online client unset;
// the online tier then degrades to mock instead of erroring.
func New(cfg Config, controller *backoff.Controller, trail *audit.Trail, logger *telemetry.Logger) *Gateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = llm.DefaultBaseURL
	}
	if cfg.Pricing == nil {
		cfg.Pricing = analysis.DefaultPricing()
	}

	g := &Gateway{
		cfg:        cfg,
		normalizer: analysis.NewNormalizer(cfg.InsightThreshold),
		backoff:    controller,
		trail:      trail,
		logger:     logger,
		locals:     make(map[string]*llm.Client),
	}
	if cfg.APIKey != "" {
		g.online = llm.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	}
	return g
}

// Analyze runs one analysis request on the given tier. It never returns an
// error: every failure path yields a valid mock-tier result whose cost record
// explains what happened.
func (g *Gateway) Analyze(ctx context.Context, req types.AnalysisRequest, tier types.Tier, localURL string) types.AnalysisResult {
	if len(req.Changes) == 0 {
		return types.EmptyResult(g.cfg.Model)
	}

	switch tier {
	case types.TierOnline:
		return g.analyzeOnline(ctx, req)
	case types.TierLocal:
		return g.analyzeLocal(ctx, req, localURL)
	default:
		result := g.mockResult(req, "mock-tier")
		g.record(ctx, audit.Record{Provider: types.TierMock, Model: g.cfg.Model, Cost: result.Cost})
		return result
	}
}

func (g *Gateway) analyzeOnline(ctx context.Context, req types.AnalysisRequest) types.AnalysisResult {
	if g.backoff.InBackoff() {
		remaining := g.backoff.Remaining().Round(time.Second)
		result := g.mockResult(req, "backoff-active")
		result.Insights = append([]types.Insight{{
			Type:       types.InsightRateLimit,
			Message:    fmt.Sprintf("Paid analysis paused for another %s after rate limiting; using fallback analysis", remaining),
			Confidence: 1.0,
		}}, result.Insights...)
		g.record(ctx, audit.Record{Provider: types.TierMock, Model: g.cfg.Model, Cost: result.Cost})
		return result
	}

	if g.online == nil {
		result := g.mockResult(req, "online-client-missing")
		g.record(ctx, audit.Record{Provider: types.TierMock, Model: g.cfg.Model, Cost: result.Cost})
		return result
	}

	prompt := buildPrompt(req)
	resp, err := g.online.ChatCompletion(ctx, llm.ChatRequest{
		Model: g.cfg.Model,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   completionMaxTokens,
		Temperature: completionTemperature,
	})
	if err != nil {
		return g.degradeOnline(ctx, req, prompt, err)
	}

	result := g.normalizer.Normalize(analysis.FromText(resp.Content()), len(req.Changes))
	result.Provider = types.TierOnline
	if resp.Usage != nil {
		result.Cost = g.cfg.Pricing.Cost(g.cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	} else {
		result.Cost = analysis.NoUsageCost(g.cfg.Model)
	}
	g.backoff.RecordSuccess()

	g.record(ctx, audit.Record{
		Provider: types.TierOnline,
		Model:    g.cfg.Model,
		Prompt:   prompt,
		Response: resp.Content(),
		Usage:    auditUsage(resp.Usage),
		Cost:     result.Cost,
	})
	return result
}

// degradeOnline maps an online-tier failure onto a mock result whose cost
// record and injected insight identify the failure class.
func (g *Gateway) degradeOnline(ctx context.Context, req types.AnalysisRequest, prompt string, err error) types.AnalysisResult {
	var result types.AnalysisResult

	switch {
	case llm.IsAuthError(err):
		result = g.mockResult(req, "")
		result.Cost = types.FailedCost(g.cfg.Model, "invalid-credentials")
		result.Insights = append([]types.Insight{{
			Type:              types.InsightConfiguration,
			Message:           "Analysis provider rejected the configured credentials; check the API key",
			Confidence:        1.0,
			RecommendedAction: "Verify the API key and restart the agent.",
		}}, result.Insights...)
		result.RequiresAttention = true
		if result.OverallAssessment == types.AssessmentNormal {
			result.OverallAssessment = types.AssessmentConcerning
		}

	case llm.IsRateLimited(err):
		g.backoff.Apply(backoff.ParseWaitHint(err.Error()))
		remaining := g.backoff.Remaining().Round(time.Second)
		result = g.mockResult(req, "")
		result.Cost = types.FailedCost(g.cfg.Model, "rate-limited")
		result.Insights = append([]types.Insight{{
			Type:       types.InsightRateLimit,
			Message:    fmt.Sprintf("Analysis provider rate limited; backing off for %s", remaining),
			Confidence: 1.0,
		}}, result.Insights...)

	default:
		result = g.mockResult(req, "")
		result.Cost = types.FailedCost(g.cfg.Model, "provider-error")
	}

	g.record(ctx, audit.Record{
		Provider: types.TierMock,
		Model:    g.cfg.Model,
		Prompt:   prompt,
		Cost:     result.Cost,
		Error:    err.Error(),
	})
	return result
}

func (g *Gateway) analyzeLocal(ctx context.Context, req types.AnalysisRequest, localURL string) types.AnalysisResult {
	if localURL == "" {
		result := g.mockResult(req, "tier-local-missing-url")
		g.record(ctx, audit.Record{Provider: types.TierMock, Model: g.cfg.Model, Cost: result.Cost})
		return result
	}

	prompt := buildPrompt(req)
	client := g.localClient(localURL)
	resp, err := client.ChatCompletion(ctx, llm.ChatRequest{
		Model: g.cfg.Model,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   completionMaxTokens,
		Temperature: completionTemperature,
	})
	if err != nil {
		result := g.mockResult(req, "")
		result.Cost = types.FailedCost(g.cfg.Model, "local-error")
		g.record(ctx, audit.Record{
			Provider: types.TierMock,
			Model:    g.cfg.Model,
			Prompt:   prompt,
			Cost:     result.Cost,
			Error:    err.Error(),
		})
		return result
	}

	result := g.normalizer.Normalize(analysis.FromText(resp.Content()), len(req.Changes))
	result.Provider = types.TierLocal
	result.Cost = analysis.NoUsageCost(g.cfg.Model)

	g.record(ctx, audit.Record{
		Provider: types.TierLocal,
		Model:    g.cfg.Model,
		Prompt:   prompt,
		Response: resp.Content(),
		Usage:    auditUsage(resp.Usage),
		Cost:     result.Cost,
	})
	return result
}

// localClient returns a cached client for the endpoint, creating it on first
// use. Local endpoints need no credentials.
func (g *Gateway) localClient(baseURL string) *llm.Client {
	g.mu.Lock()
	defer g.mu.Unlock()

	if client, ok := g.locals[baseURL]; ok {
		return client
	}
	client := llm.NewClient(baseURL, "", g.cfg.Timeout)
	g.locals[baseURL] = client
	return client
}

// mockResult runs the deterministic tier and stamps provider and cost. The
// note distinguishes a chosen mock run from a degradation.
func (g *Gateway) mockResult(req types.AnalysisRequest, note string) types.AnalysisResult {
	result := g.normalizer.Normalize(analysis.FromResult(mockAnalyze(req.Changes)), len(req.Changes))
	result.Provider = types.TierMock
	result.Cost = types.ZeroCost(g.cfg.Model, note)
	return result
}

// record appends to the audit trail. Trail failures are logged and swallowed;
// the analysis result never depends on the trail.
func (g *Gateway) record(ctx context.Context, rec audit.Record) {
	if g.trail == nil {
		return
	}
	if err := g.trail.Append(rec); err != nil {
		g.logger.LogPersistenceError(ctx, "audit_append", err)
	}
}

func auditUsage(u *llm.Usage) *audit.Usage {
	if u == nil {
		return nil
	}
	return &audit.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
