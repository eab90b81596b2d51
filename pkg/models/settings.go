package models

// Settings holds client-tunable behavior persisted alongside threads and
// messages.
type Settings struct {
	ShowInlineForks  bool `json:"showInlineForks"`
	ShowThinkingMode bool `json:"showThinkingMode"`
	// MaxContextMessages caps resolved context size; nil means unbounded.
	MaxContextMessages *int    `json:"maxContextMessages"`
	Temperature        float64 `json:"temperature"`
	MaxTokens          int     `json:"maxTokens"`
}

// DefaultSettings returns the settings applied to fresh stores and
// backfilled during snapshot migration.
func DefaultSettings() Settings {
	return Settings{
		ShowInlineForks:  true,
		ShowThinkingMode: false,
		Temperature:      0.3,
		MaxTokens:        8000,
	}
}
