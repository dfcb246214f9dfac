package job

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// Facts is the listing information handed to text generation and recorded in
// the manifest.
type Facts struct {
	Source     string         `json:"source"`
	Structured map[string]any `json:"structured,omitempty"`
}

// FactsFromInput accepts a JSON object or "Key: value" lines. Empty input
// scans the description instead.
func FactsFromInput(raw, description string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ParseFacts(description)
	}
	var facts map[string]any
	if err := json.Unmarshal([]byte(raw), &facts); err == nil {
		return facts
	}
	return ParseFacts(raw)
}

// ParseFacts reads "Key: value" lines. Russian and English keys are
// recognized; unknown keys and lines without a colon are ignored. Numeric
// fields that fail to parse keep their raw text.
func ParseFacts(text string) map[string]any {
	out := make(map[string]any)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "город", "city":
			out["city"] = val
		case "адрес", "address":
			out["address"] = val
		case "метро/район", "метро", "район", "district", "metro":
			out["district"] = val
		case "комнаты", "rooms":
			if n, err := strconv.Atoi(val); err == nil {
				out["rooms"] = n
			} else {
				out["rooms"] = val
			}
		case "площадь", "area":
			if f, err := strconv.ParseFloat(cleanArea(val), 64); err == nil {
				out["area"] = f
			} else {
				out["area"] = val
			}
		case "этаж", "floor":
			out["floor"] = val
		case "цена", "price":
			digits := strings.Map(func(r rune) rune {
				if unicode.IsDigit(r) {
					return r
				}
				return -1
			}, val)
			if n, err := strconv.Atoi(digits); err == nil {
				out["price"] = n
			} else {
				out["price"] = val
			}
		case "валюта", "currency":
			out["currency"] = strings.ToUpper(val)
		case "комиссия", "commission":
			out["commission"] = val
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cleanArea(val string) string {
	r := strings.NewReplacer(",", ".", "м2", "", "м^2", "", "м²", "", "m2", "", "m²", "")
	return strings.TrimSpace(r.Replace(val))
}
