package llm

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/zulandar/switchboard/internal/graph"
)

// expansionTemplate asks for the next candidate caller responses at the
// last agent turn, plus a terminality judgment, as a fenced JSON object.
const expansionTemplate = `You are mapping the decision tree of an automated phone agent.

Test persona and scenario:
{{ .Scenario }}

The dialogue so far, replayed verbatim (AGENT is the automated system,
CALLER is the test persona):
{{ range .Path }}AGENT: {{ .AgentUtterance }}
{{ if .UserResponse }}CALLER: {{ .UserResponse }}
{{ end }}{{ end }}
The conversation is paused at the last AGENT turn above.

Respond with a single fenced JSON object and nothing else:

` + "```json" + `
{
  "candidates": ["<next caller utterance>", "..."],
  "is_terminal": false,
  "terminal_kind": "",
  "confidence": 0.0
}
` + "```" + `

Rules:
- candidates: 2 to 4 plausible, distinct caller responses to the last
  AGENT turn. Mix standard choices with one edge case. Keep each to one
  short sentence. Do not repeat these already-explored responses:
  {{ if .Explored }}{{ range .Explored }}"{{ . }}" {{ end }}{{ else }}(none yet){{ end }}
- is_terminal: true only if the last AGENT turn ends the conversation
  (goodbye, voicemail, transfer to a human, final confirmation).
- terminal_kind: when is_terminal is true, one of "success", "transfer",
  or "fallback"; otherwise "".
- When is_terminal is true, candidates must be an empty list.
- confidence: your confidence in the judgment, 0.0 to 1.0.`

// strictSuffix is appended on reprompt after a parse failure.
const strictSuffix = `

Your previous reply could not be parsed. Reply with ONLY the fenced JSON
object. No prose before or after the fence.`

// personaTemplate wraps the scripted caller lines in a persona brief for
// the outbound voice platform.
const personaTemplate = `You are a caller testing an automated phone agent for the following scenario:
{{ .Scenario }}

Speak the following lines in order, one per agent prompt, then stop talking:
{{ range $i, $line := .Script }}{{ inc $i }}. {{ $line }}
{{ end }}
If the agent asks something your script does not cover, stay silent and let it continue. Never invent new requests.`

var templateFuncs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

var (
	expansionTmpl = template.Must(template.New("expansion").Parse(expansionTemplate))
	personaTmpl   = template.Must(template.New("persona").Funcs(templateFuncs).Parse(personaTemplate))
)

// Contextualizer renders deterministic prompts from scenario and path
// state. Zero value is not usable; construct with NewContextualizer.
type Contextualizer struct {
	scenario string
}

// NewContextualizer creates a Contextualizer for the given test scenario
// description.
func NewContextualizer(scenario string) *Contextualizer {
	return &Contextualizer{scenario: scenario}
}

// ExpansionPrompt builds the prompt requesting next caller responses for
// the path's final agent turn. Deterministic given its inputs. Strict adds
// a reprompt suffix used after a parse failure.
func (c *Contextualizer) ExpansionPrompt(path []graph.Step, explored []string, strict bool) string {
	var buf bytes.Buffer
	err := expansionTmpl.Execute(&buf, struct {
		Scenario string
		Path     []graph.Step
		Explored []string
	}{c.scenario, path, explored})
	if err != nil {
		// Templates are static and the data is plain strings; failure here
		// is a programming error.
		panic(fmt.Sprintf("llm: render expansion prompt: %v", err))
	}
	if strict {
		buf.WriteString(strictSuffix)
	}
	return buf.String()
}

// PersonaPrompt builds the system prompt handed to the voice platform for
// one scripted call.
func (c *Contextualizer) PersonaPrompt(script []string) string {
	var buf bytes.Buffer
	err := personaTmpl.Execute(&buf, struct {
		Scenario string
		Script   []string
	}{c.scenario, script})
	if err != nil {
		panic(fmt.Sprintf("llm: render persona prompt: %v", err))
	}
	return strings.TrimSpace(buf.String())
}
