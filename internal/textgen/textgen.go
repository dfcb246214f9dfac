// Package textgen produces the per-variant listing descriptions. Providers
// are best-effort: Prepare always returns exactly n texts, padding with
// templated copies of the base description when a provider fails or returns
// too few.
package textgen

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/kozaktomas/photo-variants/internal/constants"
	"github.com/kozaktomas/photo-variants/internal/job"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

//go:embed prompts/variants.txt
var variantsPrompt string

// ErrNoVariants is returned when a provider produced nothing usable.
var ErrNoVariants = errors.New("no text variants generated")

// Request is the wire and in-process shape of a generation request.
type Request struct {
	BaseFacts       job.Facts `json:"baseFacts"`
	BaseDescription string    `json:"baseDescription"`
	N               int       `json:"n"`
	StyleHints      string    `json:"styleHints,omitempty"`
}

// Generator produces up to n description variants.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) ([]string, error)
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // in USD
}

// RequestPricing holds input/output prices per 1M tokens
type RequestPricing struct {
	Input  float64
	Output float64
}

// usageTracker is embedded by the LLM providers.
type usageTracker struct {
	mu      sync.Mutex
	usage   Usage
	pricing RequestPricing
}

func (u *usageTracker) trackUsage(inputTokens, outputTokens int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage.InputTokens += int(inputTokens)
	u.usage.OutputTokens += int(outputTokens)
	u.usage.TotalCost += float64(inputTokens) / 1_000_000 * u.pricing.Input
	u.usage.TotalCost += float64(outputTokens) / 1_000_000 * u.pricing.Output
}

// GetUsage returns a copy of the accumulated usage.
func (u *usageTracker) GetUsage() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.usage
}

func (u *usageTracker) ResetUsage() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage = Usage{}
}

// Prepare asks gen for req.N variants and returns exactly req.N unique
// texts. A nil gen, a provider error or a short answer are absorbed.
func Prepare(ctx context.Context, gen Generator, req Request, logger *slog.Logger) []string {
	var raw []string
	if gen != nil && req.N > 0 {
		var err error
		raw, err = gen.Generate(ctx, req)
		if err != nil {
			logger.Warn("text generation failed, using templated descriptions",
				"provider", gen.Name(), "error", err)
		}
	}

	texts := Unique(raw, req.N)
	if missing := req.N - len(texts); missing > 0 && gen != nil {
		logger.Info("padding text variants", "generated", len(texts), "requested", req.N)
	}
	return Pad(texts, req.BaseDescription, req.N)
}

// Pad appends "{base} [Variant i]" until texts has n entries, then trims to n.
func Pad(texts []string, base string, n int) []string {
	out := make([]string, 0, n)
	out = append(out, texts[:min(len(texts), n)]...)
	for len(out) < n {
		out = append(out, fmt.Sprintf("%s [Variant %d]", strings.TrimSpace(base), len(out)+1))
	}
	return out
}

// Unique keeps, in order, at most n texts that are non-empty and
// sufficiently different from every text kept before them.
func Unique(texts []string, n int) []string {
	var out []string
	for _, t := range texts {
		if len(out) >= n {
			break
		}
		t = strings.TrimSpace(t)
		if t == "" || !isUnique(out, t, constants.TextMinWordDiff) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// isUnique rejects s when its normalized form equals an accepted text or
// when the two word sets differ by fewer than minDiff words.
func isUnique(accepted []string, s string, minDiff int) bool {
	normS := Normalize(s)
	if normS == "" {
		return false
	}
	wordsS := wordSet(normS)
	for _, t := range accepted {
		normT := Normalize(t)
		if normT == normS {
			return false
		}
		if wordDifference(wordSet(normT), wordsS) < minDiff {
			return false
		}
	}
	return true
}

var normalizer = transform.Chain(
	norm.NFKC,
	runes.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}),
)

// Normalize lowercases s, replaces everything but letters and digits with
// spaces and collapses runs of whitespace.
func Normalize(s string) string {
	out, _, err := transform.String(normalizer, s)
	if err != nil {
		out = strings.ToLower(s)
	}
	return strings.Join(strings.Fields(out), " ")
}

func wordSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(normalized) {
		set[w] = struct{}{}
	}
	return set
}

// wordDifference is the size of the symmetric difference of two word sets.
func wordDifference(a, b map[string]struct{}) int {
	diff := 0
	for w := range a {
		if _, ok := b[w]; !ok {
			diff++
		}
	}
	for w := range b {
		if _, ok := a[w]; !ok {
			diff++
		}
	}
	return diff
}

// parseVariants accepts a JSON array of strings, an object with a
// "variants" array, or an object whose values are all strings (taken in key
// order).
func parseVariants(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)

	var arr []any
	if err := json.Unmarshal([]byte(raw), &arr); err == nil {
		return stringsOf(arr), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("response is neither a JSON array nor an object: %w", err)
	}
	for _, key := range []string{"variants", "texts", "value", "data"} {
		if v, ok := obj[key]; ok {
			if err := json.Unmarshal(v, &arr); err == nil {
				return stringsOf(arr), nil
			}
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []string
	for _, k := range keys {
		var s string
		if err := json.Unmarshal(obj[k], &s); err != nil {
			return nil, fmt.Errorf("object value %q is not a string", k)
		}
		out = append(out, s)
	}
	return out, nil
}

func stringsOf(values []any) []string {
	var out []string
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// buildPrompt renders the instructions and facts for an LLM provider.
func buildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(variantsPrompt)
	fmt.Fprintf(&b, "\nGenerate exactly %d variants.\n", req.N)

	if facts := formatFacts(req.BaseFacts); facts != "" {
		fmt.Fprintf(&b, "Facts (the only source of truth): %s\n", facts)
	}
	if base := collapse(req.BaseDescription); base != "" {
		fmt.Fprintf(&b, "Reference description: %s\n", truncateRunes(base, 600))
	}
	if req.StyleHints != "" {
		fmt.Fprintf(&b, "Style: %s\n", req.StyleHints)
	}
	return b.String()
}

// formatFacts renders structured facts as "key: value; ..." in key order,
// falling back to the free-form source text.
func formatFacts(f job.Facts) string {
	if len(f.Structured) == 0 {
		return collapse(f.Source)
	}
	keys := make([]string, 0, len(f.Structured))
	for k := range f.Structured {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, collapse(fmt.Sprint(f.Structured[k]))))
	}
	return strings.Join(parts, "; ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// collect merges a fresh batch into acc, keeping uniqueness, up to n.
func collect(acc, batch []string, n int) []string {
	return Unique(append(acc, batch...), n)
}
