package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zulandar/switchboard/internal/graph"
)

// Expansion is the parsed result of an expansion completion.
type Expansion struct {
	Candidates   []string
	IsTerminal   bool
	TerminalKind string // one of the graph.Terminal* kinds when terminal
	Confidence   float64
}

// ParseExpansion extracts the JSON object from a completion that may be
// wrapped in prose or a code fence. On any failure it returns a zero
// Expansion (no candidates, not terminal) and the parse error so the
// caller can reprompt.
func ParseExpansion(raw string) (Expansion, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return Expansion{}, fmt.Errorf("llm: no JSON object in response")
	}

	var data struct {
		Candidates   []string `json:"candidates"`
		IsTerminal   bool     `json:"is_terminal"`
		TerminalKind string   `json:"terminal_kind"`
		Confidence   float64  `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return Expansion{}, fmt.Errorf("llm: decode expansion: %w", err)
	}

	if data.Confidence < 0 || data.Confidence > 1 {
		return Expansion{}, fmt.Errorf("llm: confidence %v out of range", data.Confidence)
	}
	switch data.TerminalKind {
	case "", graph.TerminalSuccess, graph.TerminalTransfer, graph.TerminalFallback:
	default:
		return Expansion{}, fmt.Errorf("llm: unknown terminal kind %q", data.TerminalKind)
	}

	exp := Expansion{
		IsTerminal:   data.IsTerminal,
		TerminalKind: data.TerminalKind,
		Confidence:   data.Confidence,
	}
	for _, c := range data.Candidates {
		c = strings.TrimSpace(c)
		if c != "" {
			exp.Candidates = append(exp.Candidates, c)
		}
	}
	if exp.IsTerminal {
		// A terminal judgment invalidates any candidates the model offered.
		exp.Candidates = nil
		if exp.TerminalKind == "" {
			exp.TerminalKind = graph.TerminalSuccess
		}
	}
	return exp, nil
}

// extractJSON returns the JSON object inside a ```json fence if present,
// otherwise the outermost brace-delimited span, otherwise "".
func extractJSON(raw string) string {
	if i := strings.Index(raw, "```json"); i >= 0 {
		rest := raw[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	if i := strings.Index(raw, "```"); i >= 0 {
		rest := raw[i+3:]
		if j := strings.Index(rest, "```"); j >= 0 {
			candidate := strings.TrimSpace(rest[:j])
			if strings.HasPrefix(candidate, "{") {
				return candidate
			}
		}
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return ""
}
