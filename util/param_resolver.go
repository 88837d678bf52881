package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenRe = regexp.MustCompile(`{(\$[^}]*)}`)

// ResolveTemplate substitutes {$.path} tokens in text with jsonpath lookups
// against data. Unresolvable tokens are replaced with an empty string.
func ResolveTemplate(data map[string]any, text string) string {
	tokens := tokenRe.FindAllString(text, -1)
	for _, token := range tokens {
		path := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
		value, err := jsonpath.JsonPathLookup(data, path)
		if err != nil || value == nil {
			text = strings.ReplaceAll(text, token, "")
			continue
		}
		text = strings.ReplaceAll(text, token, fmt.Sprintf("%v", value))
	}
	return text
}

// ResolveParams walks a params map and resolves {$.path} tokens inside every
// string value, recursing into nested maps and lists.
func ResolveParams(data map[string]any, params map[string]any) map[string]any {
	output := make(map[string]any, len(params))
	for k, v := range params {
		output[k] = resolveValue(data, v)
	}
	return output
}

func resolveValue(data map[string]any, v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return ResolveParams(data, tv)
	case []any:
		out := make([]any, 0, len(tv))
		for _, item := range tv {
			out = append(out, resolveValue(data, item))
		}
		return out
	case string:
		return ResolveTemplate(data, tv)
	default:
		return v
	}
}
