package llm

// The proxy always injects exactly one of these system prompts ahead of the
// conversation, selected by the thinking-mode setting.

const systemPrompt = `You are a helpful assistant embedded in a threaded chat client. ` +
	`Conversations branch into threads that can fork from any message; the messages you ` +
	`receive are the resolved context for the current thread. Answer concisely and stay ` +
	`on the topic of the active thread.`

const systemPromptThinking = `You are a helpful assistant embedded in a threaded chat client. ` +
	`Conversations branch into threads that can fork from any message; the messages you ` +
	`receive are the resolved context for the current thread. Reason through the problem ` +
	`step by step, showing your reasoning before stating the final answer.`

func selectSystemPrompt(showThinking bool) string {
	if showThinking {
		return systemPromptThinking
	}
	return systemPrompt
}
