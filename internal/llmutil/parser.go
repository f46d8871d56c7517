// internal/llmutil/parser.go
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// Regex definitions use \x60 for backticks because Go raw strings cannot
	// contain backticks.

	// jsonObjectRegex extracts a JSON object wrapped in a markdown code block.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	// jsonArrayRegex extracts a JSON array wrapped in a markdown code block.
	jsonArrayRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")

	// urlRegex finds the first absolute http(s) URL inside free text.
	urlRegex = regexp.MustCompile(`https?://[^\s'"` + "\x60" + `<>]+`)
)

// ExtractJSON locates the JSON payload inside an LLM response, peeling away
// markdown fences and conversational framing. Returns the candidate JSON text
// and whether anything that looks like JSON was found.
func ExtractJSON(response string) (string, bool) {
	response = strings.TrimSpace(response)
	if response == "" {
		return "", false
	}

	// Already bare JSON.
	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response, true
	}

	// Markdown code fences are the most common wrapping.
	if strings.HasPrefix(response, "```") || strings.Contains(response, "```") {
		if m := jsonArrayRegex.FindStringSubmatch(response); len(m) > 1 {
			return strings.TrimSpace(m[1]), true
		}
		if m := jsonObjectRegex.FindStringSubmatch(response); len(m) > 1 {
			return strings.TrimSpace(m[1]), true
		}
	}

	// Fall back to the outermost bracket pair inside conversational text.
	// Arrays are checked first since plans are arrays.
	if fb, lb := strings.Index(response, "["), strings.LastIndex(response, "]"); fb != -1 && lb > fb {
		return response[fb : lb+1], true
	}
	if fb, lb := strings.Index(response, "{"), strings.LastIndex(response, "}"); fb != -1 && lb > fb {
		return response[fb : lb+1], true
	}
	return "", false
}

// ParseJSONResponse parses an LLM response into T, tolerating markdown
// wrapping and surrounding prose. The response is untrusted free text and is
// never assumed to be well-formed.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload, ok := ExtractJSON(response)
	if !ok {
		return nil, fmt.Errorf("no JSON found in response (truncated): %s", Truncate(response, 200))
	}

	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w; extracted (truncated): %s", err, Truncate(payload, 500))
	}
	return &result, nil
}

// FirstURL returns the first absolute http(s) URL found in the text, with
// surrounding junk (backticks, quotes, trailing punctuation) removed.
func FirstURL(text string) (string, bool) {
	match := urlRegex.FindString(text)
	if match == "" {
		return "", false
	}
	match = strings.TrimRight(match, ".,;:)]}")
	return match, true
}

// Truncate shortens s to at most maxLen bytes for inclusion in error messages
// and log fields.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
