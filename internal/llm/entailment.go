package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/citeaudit/internal/cache"
	"github.com/ppiankov/citeaudit/internal/score"
	"github.com/ppiankov/citeaudit/internal/worker"
)

// EntailmentScorer asks a provider for the probability that a passage
// supports a claim. It implements score.Scorer.
type EntailmentScorer struct {
	provider Provider
	cache    cache.Cache // May be nil
	limiter  *worker.Limiter
	model    string
}

var _ score.Scorer = (*EntailmentScorer)(nil)

// NewEntailmentScorer creates a scorer; c may be nil to disable caching
func NewEntailmentScorer(p Provider, c cache.Cache, limiter *worker.Limiter, model string) *EntailmentScorer {
	if limiter == nil {
		limiter = worker.NewLimiter(0, 1)
	}
	return &EntailmentScorer{
		provider: p,
		cache:    c,
		limiter:  limiter,
		model:    model,
	}
}

// Name returns "llm:<provider>"
func (s *EntailmentScorer) Name() string {
	return "llm:" + s.provider.Name()
}

// Score returns the provider's support probability, clamped to [0,1]
func (s *EntailmentScorer) Score(ctx context.Context, claim, passage string) (float64, error) {
	key := s.cacheKey(claim, passage)
	if s.cache != nil {
		if data, ok := s.cache.Get(key); ok {
			if v, err := strconv.ParseFloat(string(data), 64); err == nil {
				return score.Clamp(v), nil
			}
		}
	}

	if err := s.limiter.Wait(ctx, s.provider.Name()); err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}

	resp, err := s.provider.Complete(ctx, CompletionRequest{
		System:    entailmentSystem,
		Prompt:    BuildEntailmentPrompt(claim, passage),
		Model:     s.model,
		MaxTokens: 200,
		JSON:      true,
	})
	if err != nil {
		return 0, err
	}

	v, err := ParseSupport(resp.Text)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		_ = s.cache.Set(key, []byte(strconv.FormatFloat(v, 'f', -1, 64)), 0)
	}
	return v, nil
}

func (s *EntailmentScorer) cacheKey(claim, passage string) string {
	return cache.CacheKey(fmt.Sprintf("entail:%s:%s:%s\x00%s", s.provider.Name(), s.model, claim, passage))
}

type supportResponse struct {
	Support *float64 `json:"support"`
	Reason  string   `json:"reason"`
}

// ParseSupport reads {"support": p} from model output. Code fences and text
// around the object are tolerated.
func ParseSupport(text string) (float64, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return 0, fmt.Errorf("no JSON object in response: %q", truncate(text, 80))
	}

	var resp supportResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return 0, fmt.Errorf("parse support response: %w", err)
	}
	if resp.Support == nil {
		return 0, fmt.Errorf("response has no support field")
	}
	return score.Clamp(*resp.Support), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
