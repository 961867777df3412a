package validate

import (
	"encoding/json"
	"strings"
	"unicode"
)

// Kind says which layer of the fallback chain produced a Verdict.
type Kind string

const (
	// KindJSON means the response parsed as strict JSON.
	KindJSON Kind = "json"
	// KindStructured means the response was recovered from key: value lines.
	KindStructured Kind = "structured"
	// KindDegraded means neither parse succeeded and a best-effort record
	// was built from the raw response.
	KindDegraded Kind = "degraded"
)

// Verdict is the validator's structured outcome for one draft.
type Verdict struct {
	Kind     Kind
	Title    string
	Content  string
	Keywords []string
	IsValid  bool
	Reason   string
}

const degradedContentLimit = 500

// ParseResponse turns a raw service response into a Verdict via a layered
// chain: strict JSON, then line-oriented structured text, then a degraded
// record carrying fallbackTitle and the first 500 characters of the cleaned
// response. It never fails; the degraded layer always produces something.
func ParseResponse(raw, fallbackTitle string) *Verdict {
	cleaned := sanitize(raw)

	if v := parseJSON(cleaned); v != nil {
		return v
	}
	if v := parseStructuredText(cleaned); v != nil {
		return v
	}

	content := cleaned
	if len(content) > degradedContentLimit {
		content = content[:degradedContentLimit]
	}
	return &Verdict{
		Kind:     KindDegraded,
		Title:    fallbackTitle,
		Content:  strings.TrimSpace(content),
		Keywords: []string{"general"},
		IsValid:  true,
		Reason:   "response unparseable, kept as-is",
	}
}

// sanitize strips markdown code fences and non-printable characters.
func sanitize(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		// An unclosed fence (token-capped response cut off mid-stream)
		// keeps everything after the opening line.
		endIdx := len(lines)
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		text = strings.Join(lines[1:endIdx], "\n")
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func parseJSON(text string) *Verdict {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil
	}

	obj, ok := cleanValue(parsed).(map[string]any)
	if !ok {
		return nil
	}

	v := &Verdict{Kind: KindJSON, IsValid: true}
	if s, ok := obj["title"].(string); ok {
		v.Title = s
	}
	if s, ok := obj["content"].(string); ok {
		v.Content = s
	}
	if s, ok := obj["reason"].(string); ok {
		v.Reason = s
	}
	if b, ok := obj["is_valid"].(bool); ok {
		v.IsValid = b
	}
	if list, ok := obj["keywords"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				v.Keywords = append(v.Keywords, s)
			}
		}
	}
	return v
}

// cleanValue recursively normalizes a decoded JSON structure: map keys become
// snake_case, string values are trimmed, and null or empty members are
// dropped.
func cleanValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			cleaned := cleanValue(inner)
			if cleaned == nil {
				continue
			}
			if s, ok := cleaned.(string); ok && s == "" {
				continue
			}
			out[snakeCase(k)] = cleaned
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, inner := range val {
			cleaned := cleanValue(inner)
			if cleaned == nil {
				continue
			}
			if s, ok := cleaned.(string); ok && s == "" {
				continue
			}
			out = append(out, cleaned)
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case string:
		return strings.TrimSpace(val)
	default:
		return v
	}
}

// snakeCase normalizes a key: spaces and dashes become underscores, camelCase
// boundaries are split.
func snakeCase(key string) string {
	key = strings.TrimSpace(key)
	var b strings.Builder
	var prevLower bool
	for _, r := range key {
		switch {
		case r == ' ' || r == '-':
			b.WriteRune('_')
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return b.String()
}

// structured-text keys recognized by the line-oriented parser.
var textKeys = map[string]struct{}{
	"title": {}, "content": {}, "keywords": {}, "is_valid": {}, "reason": {},
}

// parseStructuredText recovers a Verdict from `key: value` lines and keyword
// bullets. Returns nil when the recovered content looks broken: shorter than
// 100 characters, control characters, doubled-asterisk markup, or literal
// escaped newlines.
func parseStructuredText(text string) *Verdict {
	v := &Verdict{Kind: KindStructured, IsValid: true}
	var contentLines []string
	current := ""
	matchedKeys := 0

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if key, value, ok := splitHeader(line); ok {
			matchedKeys++
			current = key
			switch key {
			case "title":
				v.Title = value
			case "content":
				if value != "" {
					contentLines = append(contentLines, value)
				}
			case "reason":
				v.Reason = value
			case "is_valid":
				v.IsValid = strings.EqualFold(value, "true") || strings.EqualFold(value, "yes")
			case "keywords":
				for _, kw := range strings.Split(value, ",") {
					if kw = strings.TrimSpace(kw); kw != "" {
						v.Keywords = append(v.Keywords, kw)
					}
				}
			}
			continue
		}

		if strings.HasPrefix(line, "- ") {
			if kw := strings.TrimSpace(strings.TrimPrefix(line, "- ")); kw != "" {
				v.Keywords = append(v.Keywords, kw)
			}
			continue
		}

		if current == "content" {
			contentLines = append(contentLines, line)
		}
	}

	if matchedKeys == 0 {
		return nil
	}

	v.Content = strings.TrimSpace(strings.Join(contentLines, " "))
	if len(v.Content) < 100 {
		return nil
	}
	if strings.Contains(v.Content, "**") || strings.Contains(v.Content, `\n`) {
		return nil
	}
	for _, r := range v.Content {
		if unicode.IsControl(r) {
			return nil
		}
	}
	return v
}

// splitHeader recognizes a `key: value` line for one of the known keys.
func splitHeader(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = snakeCase(strings.Trim(strings.ToLower(line[:idx]), "*# "))
	if _, known := textKeys[key]; !known {
		return "", "", false
	}
	return key, strings.TrimSpace(line[idx+1:]), true
}
