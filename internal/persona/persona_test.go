package persona

import (
	"strings"
	"testing"
)

func TestProfileForFallsBackToWarm(t *testing.T) {
	p := ProfileFor("unknown-persona")
	if p.ID != "warm" {
		t.Fatalf("ProfileFor(unknown).ID = %q, want warm", p.ID)
	}
}

func TestSystemPromptWithoutContext(t *testing.T) {
	p := ProfileFor("warm")
	prompt := SystemPrompt(p, "")
	if prompt != p.Preamble {
		t.Fatalf("persona-only prompt = %q, want bare preamble", prompt)
	}
}

func TestSystemPromptIncludesContext(t *testing.T) {
	prompt := SystemPrompt(ProfileFor("grounded"), "they worry about deadlines")
	if !strings.Contains(prompt, "they worry about deadlines") {
		t.Fatalf("prompt missing context block: %q", prompt)
	}
}
