package llm

import (
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/graph"
)

func TestExpansionPrompt_ReplaysDialogue(t *testing.T) {
	c := NewContextualizer("Air conditioning repair company")
	path := []graph.Step{
		{AgentUtterance: "Thanks for calling Acme.", UserResponse: "hello"},
		{AgentUtterance: "Press one for sales."},
	}
	p := c.ExpansionPrompt(path, []string{"one"}, false)

	for _, want := range []string{
		"Air conditioning repair company",
		"AGENT: Thanks for calling Acme.",
		"CALLER: hello",
		"AGENT: Press one for sales.",
		`"one"`,
		"```json",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(p, "could not be parsed") {
		t.Error("non-strict prompt contains reprompt suffix")
	}
}

func TestExpansionPrompt_Deterministic(t *testing.T) {
	c := NewContextualizer("scenario")
	path := []graph.Step{{AgentUtterance: "hi"}}
	a := c.ExpansionPrompt(path, nil, false)
	b := c.ExpansionPrompt(path, nil, false)
	if a != b {
		t.Error("prompt not deterministic for identical inputs")
	}
}

func TestExpansionPrompt_Strict(t *testing.T) {
	c := NewContextualizer("scenario")
	p := c.ExpansionPrompt([]graph.Step{{AgentUtterance: "hi"}}, nil, true)
	if !strings.Contains(p, "ONLY the fenced JSON") {
		t.Error("strict prompt missing reprompt instruction")
	}
}

func TestPersonaPrompt_NumbersScript(t *testing.T) {
	c := NewContextualizer("Plumbing service")
	p := c.PersonaPrompt([]string{"hello", "I need a plumber"})
	if !strings.Contains(p, "1. hello") || !strings.Contains(p, "2. I need a plumber") {
		t.Errorf("script lines not numbered:\n%s", p)
	}
	if !strings.Contains(p, "Plumbing service") {
		t.Error("scenario missing from persona prompt")
	}
}
