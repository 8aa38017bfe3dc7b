package llm

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	cferrors "github.com/randalmurphal/careflow/pkg/careflow/errors"
)

// DecodeJSON extracts the first JSON object from model output. Markdown
// code fences and prose around the object are ignored.
func DecodeJSON(content string) (map[string]any, error) {
	text := strings.TrimSpace(content)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, &cferrors.ContentError{Input: truncate(content, 200), Message: "no JSON object in output"}
	}

	var data map[string]any
	if err := sonic.UnmarshalString(text[start:end+1], &data); err != nil {
		return nil, &cferrors.ContentError{Input: truncate(content, 200), Message: fmt.Sprintf("decode JSON: %v", err)}
	}
	return data, nil
}

func stringify(v any) string {
	s, err := sonic.MarshalString(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return strings.Trim(s, `"`)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
