package feedback

import (
	"strings"

	appErr "autograde/pkg/errors"
)

// FieldName turns a sheet header into a placeholder name: trimmed, spaces to underscores.
func FieldName(header string) string {
	return strings.ReplaceAll(strings.TrimSpace(header), " ", "_")
}

// Fields maps placeholder names to the cells of one row.
func Fields(headers, row []string) map[string]string {
	fields := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(row) {
			fields[FieldName(h)] = row[i]
		}
	}
	return fields
}

// Render replaces {Name} placeholders with fields. "{{" and "}}" produce
// literal braces. An unknown placeholder or a stray brace is an error.
func Render(tmpl string, fields map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", appErr.Newf(appErr.TemplateFailed, "unclosed placeholder at offset %d", i)
			}
			name := tmpl[i+1 : i+1+end]
			value, ok := fields[name]
			if !ok {
				return "", appErr.Newf(appErr.TemplateFailed, "unknown placeholder {%s}", name)
			}
			b.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", appErr.Newf(appErr.TemplateFailed, "single '}' at offset %d", i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
