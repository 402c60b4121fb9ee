// Package chatproto defines the four wire protocols the gateway mediates
// between, plus the HuggingFace alias that rides on OpenAI's wire format.
package chatproto

// Protocol identifies a chat-completion wire format on either the client
// or upstream side of the gateway.
type Protocol string

const (
	OpenAI      Protocol = "openai"
	Claude      Protocol = "claude"
	Gemini      Protocol = "gemini"
	Ollama      Protocol = "ollama"
	HuggingFace Protocol = "huggingface"
)

// Wire returns the protocol that actually governs request/response
// serialization. HuggingFace aliases to OpenAI's wire format.
func (p Protocol) Wire() Protocol {
	if p == HuggingFace {
		return OpenAI
	}
	return p
}

func (p Protocol) Valid() bool {
	switch p {
	case OpenAI, Claude, Gemini, Ollama, HuggingFace:
		return true
	default:
		return false
	}
}

func (p Protocol) String() string {
	return string(p)
}
