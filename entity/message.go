package entity

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one role-tagged entry in the running session history.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// TranscriptEntry is one line of the per-day session transcript file.
type TranscriptEntry struct {
	Timestamp string        `json:"timestamp"`
	AgentID   string        `json:"agent_id"`
	Messages  []ChatMessage `json:"messages"`
}
