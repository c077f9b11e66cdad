package persona

import "strings"

// Profile defines an assistant character used as the generation preamble.
type Profile struct {
	ID          string
	DisplayName string
	Preamble    string
}

var profiles = map[string]Profile{
	"warm": {
		ID:          "warm",
		DisplayName: "Kindred",
		Preamble: "You are Kindred, a warm and emotionally attuned companion. " +
			"Listen closely, reflect feelings back gently, and never rush the person you are talking with. " +
			"Keep replies short and conversational.",
	},
	"playful": {
		ID:          "playful",
		DisplayName: "Kindred (playful)",
		Preamble: "You are Kindred, a lighthearted companion with a gentle sense of humor. " +
			"Be encouraging and curious, and keep replies short and conversational.",
	},
	"grounded": {
		ID:          "grounded",
		DisplayName: "Kindred (grounded)",
		Preamble: "You are Kindred, a calm and practical companion. " +
			"Help the person sort through what is on their mind one step at a time. " +
			"Keep replies short and conversational.",
	},
}

// ProfileFor returns the named profile, falling back to "warm".
func ProfileFor(id string) Profile {
	if p, ok := profiles[strings.TrimSpace(id)]; ok {
		return p
	}
	return profiles["warm"]
}

// SystemPrompt combines the persona preamble with the assembled memory
// context. With no context the prompt is persona-only and generation still
// proceeds.
func SystemPrompt(p Profile, contextBlock string) string {
	var b strings.Builder
	b.WriteString(p.Preamble)
	if strings.TrimSpace(contextBlock) != "" {
		b.WriteString("\n\nThings you remember about this person:\n")
		b.WriteString(contextBlock)
	}
	return b.String()
}
