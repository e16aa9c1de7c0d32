package ai

import "strings"

// characterInstruction asks the model for a persona usable as a system prompt.
const characterInstruction = "Generate a creative and engaging personality for an AI chat assistant. " +
	"Describe the character in a brief system prompt format (e.g., 'You are a witty and insightful assistant...')."

// CharacterInstruction returns the fixed request sent when a new character is generated.
func CharacterInstruction() string {
	return characterInstruction
}

func cleanReply(content string) string {
	return strings.TrimSpace(content)
}
