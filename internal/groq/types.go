package groq

// Message is one chat turn sent to or returned by the completion service.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// ChatRequest is a non-streaming chat completion request.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// Choice is one completion alternative.
type Choice struct {
	Message Message `json:"message"`
}

// ChatResponse is the completion service's reply.
type ChatResponse struct {
	Choices []Choice `json:"choices"`
}
