// Package validate escalates drafts to an external generative text service
// for cleaning and verification, tolerating a non-deterministic responder.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"newsharvest/internal/llm"
)

// ErrEmptyResponse means the service answered with an empty body; the
// attempt is not retried.
var ErrEmptyResponse = errors.New("empty validator response")

// ErrNoProvider means no generative text service is configured.
var ErrNoProvider = errors.New("no validator provider configured")

const cleaningPrompt = `You are verifying a scraped news article for a reader-facing archive.

Reject the page if it is not an actual news article (contact page, photo gallery, about-us, category index), if it is not written in English, or if the text is too poorly formatted to present.

Otherwise clean it up: fix the title, rewrite the content to at most 500 words of plain prose, and list its topical keywords.

Article Title: %s
Content:
%s

Respond with ONLY this JSON:
{
    "title": "cleaned title",
    "content": "cleaned article text, 500 words maximum",
    "keywords": ["keyword1", "keyword2", "keyword3"],
    "is_valid": true or false,
    "reason": "one sentence explaining a false verdict"
}`

// contentLimit bounds how much body text is sent to the service.
const contentLimit = 4000

// Validator sends drafts to a generative text service and parses its
// verdicts through the layered fallback chain.
type Validator struct {
	provider    llm.Provider
	maxAttempts int
	maxTokens   int
}

// New creates a Validator. maxAttempts below 1 is treated as 1.
func New(provider llm.Provider, maxAttempts, maxTokens int) *Validator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if maxTokens == 0 {
		maxTokens = 1024
	}
	return &Validator{provider: provider, maxAttempts: maxAttempts, maxTokens: maxTokens}
}

// Validate runs the cleaning prompt for one draft. Service failures are
// retried up to the attempt budget; an empty response ends the call
// immediately. The returned Verdict always parses (worst case degraded);
// a non-nil error means the draft should be treated as invalid.
func (v *Validator) Validate(ctx context.Context, title, content string) (*Verdict, error) {
	if v.provider == nil {
		return nil, ErrNoProvider
	}

	if len(content) > contentLimit {
		content = content[:contentLimit] + "..."
	}
	prompt := fmt.Sprintf(cleaningPrompt, title, content)

	var lastErr error
	for attempt := 1; attempt <= v.maxAttempts; attempt++ {
		raw, err := v.provider.Generate(ctx, prompt, v.maxTokens)
		if err != nil {
			lastErr = err
			log.Printf("validator attempt %d/%d failed: %v", attempt, v.maxAttempts, err)
			continue
		}
		if strings.TrimSpace(raw) == "" {
			return nil, ErrEmptyResponse
		}
		return ParseResponse(raw, title), nil
	}

	return nil, fmt.Errorf("validation gave up after %d attempts: %w", v.maxAttempts, lastErr)
}
