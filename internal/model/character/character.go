package character

// DefaultCustomPrompt prefills the Custom text area.
const DefaultCustomPrompt = "You are a knowledgeable expert."

// Preset is a ready-made system prompt the user can load into the Custom text area.
type Preset struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// Seed provides the built-in presets. The first one matches DefaultCustomPrompt.
func Seed() []Preset {
	return []Preset{
		{
			ID:     "expert",
			Name:   "Knowledgeable expert",
			Prompt: DefaultCustomPrompt,
		},
		{
			ID:     "terse",
			Name:   "Terse",
			Prompt: "You are terse. Answer in as few words as possible.",
		},
		{
			ID:     "socratic",
			Name:   "Socratic tutor",
			Prompt: "You are a patient Socratic tutor. Guide the user with questions instead of handing out answers.",
		},
		{
			ID:     "storyteller",
			Name:   "Storyteller",
			Prompt: "You are a warm and witty storyteller who answers with vivid, short anecdotes.",
		},
	}
}
