package model

import (
	"maps"
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/cognimesh/core"
)

var (
	openTagRe = regexp.MustCompile(`<([A-Za-z_][A-Za-z0-9_\-]*)>`)
	keyLineRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_\-]*)\s*:\s*(.*)$`)
)

// Response is a parsed model output: a flat, case-insensitive key/value view.
// Missing keys are simply absent.
type Response struct {
	Raw    string
	Fields map[string]string
}

// Get returns the value for key.
func (r *Response) Get(key string) (string, bool) {
	if r == nil {
		return "", false
	}

	v, ok := r.Fields[strings.ToLower(key)]

	return v, ok
}

// String returns the value for key or "".
func (r *Response) String(key string) string {
	v, _ := r.Get(key)
	return v
}

// List splits a comma or newline separated value, dropping empty items.
func (r *Response) List(key string) []string {
	v, ok := r.Get(key)
	if !ok {
		return nil
	}

	fields := strings.FieldsFunc(v, func(c rune) bool { return c == ',' || c == '\n' })

	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(strings.TrimSpace(f), `"'`)
		if f != "" {
			out = append(out, f)
		}
	}

	return out
}

// Bool interprets yes/true/1 as true.
func (r *Response) Bool(key string) bool {
	switch strings.ToLower(r.String(key)) {
	case "true", "yes", "1", "y":
		return true
	default:
		return false
	}
}

// Float parses a numeric value.
func (r *Response) Float(key string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(r.String(key)), 64)
	return f, err == nil
}

// Parse extracts fields from the constrained response format. Tags
// (<key>value</key>) are preferred; container tags whose value starts with a
// tag are descended. When no tag precedes the first "key: value" line the
// response is read as key lines, where lines without a key continue the
// previous value and inline tags stay part of the value. Key-line fields
// win over tags found inside them. A response with no recognizable field is
// a parse error.
func Parse(raw string) (*Response, error) {
	fields := map[string]string{}
	firstTag := parseTags(raw, fields)

	if firstTag < 0 || firstKeyLine(raw) < firstTag {
		lines := map[string]string{}
		parseKeyLines(raw, lines)
		maps.Copy(fields, lines)
	}

	if len(fields) == 0 {
		return nil, core.NewError(core.CodeParse, "no fields found in model output")
	}

	return &Response{Raw: raw, Fields: fields}, nil
}

// ParseBlocks returns the fields of every top-level <tag>...</tag> block,
// in order. It is used for repeated structures such as extracted facts.
func ParseBlocks(raw, tag string) []map[string]string {
	var blocks []map[string]string

	open := "<" + tag + ">"
	pos := 0

	for {
		i := strings.Index(raw[pos:], open)
		if i < 0 {
			return blocks
		}

		start := pos + i + len(open)

		end := findClose(raw, start, tag)
		if end < 0 {
			return blocks
		}

		fields := map[string]string{}
		parseTags(raw[start:end], fields)
		blocks = append(blocks, fields)

		pos = end + len(tag) + 3
	}
}

// parseTags collects tag fields into fields and returns the offset of the
// first matched opening tag, or -1.
func parseTags(s string, fields map[string]string) int {
	first := -1
	pos := 0

	for pos < len(s) {
		loc := openTagRe.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			return first
		}

		name := s[pos+loc[2] : pos+loc[3]]
		start := pos + loc[1]

		end := findClose(s, start, name)
		if end < 0 {
			// unmatched opening tag, treat as text
			pos = start
			continue
		}

		if first < 0 {
			first = pos + loc[0]
		}

		inner := s[start:end]
		value := strings.TrimSpace(inner)

		if strings.HasPrefix(value, "<") {
			parseTags(inner, fields)
		}

		key := strings.ToLower(name)
		if _, exists := fields[key]; !exists {
			fields[key] = value
		}

		pos = end + len(name) + 3
	}

	return first
}

// firstKeyLine returns the offset of the first "key: value" line, or
// len(s) when there is none.
func firstKeyLine(s string) int {
	off := 0

	for _, line := range strings.SplitAfter(s, "\n") {
		if keyLineRe.MatchString(strings.TrimRight(line, "\n")) {
			return off
		}

		off += len(line)
	}

	return len(s)
}

// findClose returns the index of the closing tag matching an opening tag
// that ended at from, honoring nested tags of the same name.
func findClose(s string, from int, name string) int {
	open, closeTag := "<"+name+">", "</"+name+">"
	depth := 1
	i := from

	for {
		c := strings.Index(s[i:], closeTag)
		if c < 0 {
			return -1
		}

		if o := strings.Index(s[i:], open); o >= 0 && o < c {
			depth++
			i += o + len(open)

			continue
		}

		depth--
		if depth == 0 {
			return i + c
		}

		i += c + len(closeTag)
	}
}

func parseKeyLines(s string, fields map[string]string) {
	var (
		current string
		buf     []string
	)

	flush := func() {
		if current == "" {
			return
		}

		if _, exists := fields[current]; !exists {
			fields[current] = strings.TrimSpace(strings.Join(buf, "\n"))
		}
	}

	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}

		if m := keyLineRe.FindStringSubmatch(line); m != nil {
			flush()

			current = strings.ToLower(m[1])
			buf = []string{m[2]}

			continue
		}

		if current != "" {
			buf = append(buf, line)
		}
	}

	flush()
}
