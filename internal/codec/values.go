package codec

import (
	"encoding/json"
	"time"

	"github.com/quillsec/quill/internal/model"
)

// helpers for pulling typed values out of generic JSON payloads

func str(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func strPtr(p map[string]any, key string) *string {
	if s, ok := p[key].(string); ok && s != "" {
		return &s
	}
	return nil
}

func strList(p map[string]any, key string) []string {
	out := make([]string, 0)
	list, _ := p[key].([]any)
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intVal(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case int:
		return v
	}
	return 0
}

func boolVal(p map[string]any, key string) bool {
	b, _ := p[key].(bool)
	return b
}

func boolPtr(p map[string]any, key string) *bool {
	if b, ok := p[key].(bool); ok {
		return &b
	}
	return nil
}

func timeVal(p map[string]any, key string) time.Time {
	s, ok := p[key].(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func mapVal(p map[string]any, key string) map[string]any {
	m, _ := p[key].(map[string]any)
	return m
}

func listVal(p map[string]any, key string) []any {
	l, _ := p[key].([]any)
	return l
}

// jsonColumn re-marshals a payload value into a JSON string column.
func jsonColumn(p map[string]any, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	s, err := model.EncodeJSON(v)
	if err != nil {
		return ""
	}
	return s
}

// rawJSON turns a JSON string column back into a payload value.
func rawJSON(column string) any {
	if column == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(column), &v); err != nil {
		return nil
	}
	return v
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func memberList(p map[string]any, key string) []model.ImportedMember {
	out := make([]model.ImportedMember, 0)
	for _, v := range listVal(p, key) {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.ImportedMember{
			ID:          str(m, "id"),
			Roles:       strList(m, "roles"),
			Email:       str(m, "email"),
			Phone:       str(m, "phone"),
			Mobile:      str(m, "mobile"),
			Name:        str(m, "name"),
			TitleBefore: str(m, "title_before"),
			FirstName:   str(m, "first_name"),
			MiddleName:  str(m, "middle_name"),
			LastName:    str(m, "last_name"),
			TitleAfter:  str(m, "title_after"),
		})
	}
	return out
}
