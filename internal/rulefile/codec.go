package rulefile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/vodrules/internal/domain"
)

const (
	// KindKeyword is the rule type of a contains-style match.
	KindKeyword = "DOMAIN-KEYWORD"
	// KindSuffix is the rule type of a domain-suffix match.
	KindSuffix = "DOMAIN-SUFFIX"

	header = "# Auto-generated video CDN rules"
)

// Format selects the wrapper written around the rule lines.
type Format string

const (
	// FormatYAML writes a rule-provider document with a "payload" list.
	FormatYAML Format = "yaml"
	// FormatList writes one rule per line.
	FormatList Format = "list"
)

// ParseFormat maps a configuration value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatYAML, "yml", "":
		return FormatYAML, nil
	case FormatList, "txt":
		return FormatList, nil
	default:
		return "", fmt.Errorf("unknown rule file format %q", s)
	}
}

// ruleLine matches a rule line whatever wraps it: list markers, quotes and
// indentation are ignored, as is a trailing policy field.
var ruleLine = regexp.MustCompile(`^\s*(?:-\s*)?["']?(DOMAIN-KEYWORD|DOMAIN-SUFFIX)\s*,\s*([^,"'\s]*)`)

// SkippedLine is a recognized rule line whose operand could not be used.
type SkippedLine struct {
	Line   int
	Text   string
	Reason string
}

// Decoded is the outcome of decoding a rule file.
type Decoded struct {
	Rules   domain.RuleSet
	Skipped []SkippedLine
}

// Decode recovers a RuleSet from a previously written rule file. Lines that
// are not rule lines are ignored; rule lines with an invalid operand are
// reported in Skipped and do not stop decoding.
func Decode(r io.Reader) (Decoded, error) {
	out := Decoded{Rules: domain.NewRuleSet()}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		m := ruleLine.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		kind, operand := m[1], strings.ToLower(m[2])

		switch kind {
		case KindKeyword:
			if !domain.ValidKeyword(operand) {
				out.Skipped = append(out.Skipped, SkippedLine{Line: lineNo, Text: text, Reason: "invalid keyword"})
				continue
			}
			out.Rules.Keywords.Add(operand)
		case KindSuffix:
			host, ok := domain.ParseHostname(operand)
			if !ok {
				out.Skipped = append(out.Skipped, SkippedLine{Line: lineNo, Text: text, Reason: "invalid suffix"})
				continue
			}
			out.Rules.Suffixes.Add(host)
		}
	}
	if err := scanner.Err(); err != nil {
		return Decoded{}, fmt.Errorf("failed to read rule file: %w", err)
	}
	return out, nil
}

// Lines returns the rule lines of rs: keywords first, then suffixes, each
// group sorted lexicographically.
func Lines(rs domain.RuleSet) []string {
	lines := make([]string, 0, rs.Len())
	for _, k := range rs.Keywords.Sorted() {
		lines = append(lines, KindKeyword+","+k)
	}
	for _, s := range rs.Suffixes.Sorted() {
		lines = append(lines, KindSuffix+","+s)
	}
	return lines
}

// document is the rule-provider wrapper.
type document struct {
	Payload []string `yaml:"payload"`
}

// Encode writes rs in the given format.
func Encode(w io.Writer, rs domain.RuleSet, format Format) error {
	lines := Lines(rs)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s (%d keywords, %d suffixes)\n", header, rs.Keywords.Len(), rs.Suffixes.Len())

	switch format {
	case FormatYAML:
		if len(lines) == 0 {
			buf.WriteString("payload: []\n")
			break
		}
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(document{Payload: lines}); err != nil {
			return fmt.Errorf("failed to encode rule file: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode rule file: %w", err)
		}
	case FormatList:
		for _, l := range lines {
			buf.WriteString(l)
			buf.WriteByte('\n')
		}
	default:
		return fmt.Errorf("unknown rule file format %q", format)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write rule file: %w", err)
	}
	return nil
}
