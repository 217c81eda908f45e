package provider

import (
	"encoding/json"
	"strconv"
)

// Roles accepted in a prompt.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a prompt sent to the provider.
type Message struct {
	Role    string
	Content string
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Result is a completed provider call.
type Result struct {
	ID           string
	Content      string
	Model        string
	FinishReason string
	Usage        *Usage // nil when the provider omitted usage
}

// ModelDescriptor describes one model offered by the provider.
type ModelDescriptor struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	ContextLength int      `json:"context_length,omitempty"`
	Pricing       *Pricing `json:"pricing,omitempty"`
}

// Pricing is the per-token price of a model, kept as the provider's decimal
// string to avoid float rounding.
type Pricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

type modelList struct {
	Data []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Description   string `json:"description"`
		ContextLength int    `json:"context_length"`
		Pricing       *struct {
			Prompt     price `json:"prompt"`
			Completion price `json:"completion"`
		} `json:"pricing"`
	} `json:"data"`
}

// price accepts both "0.000001" and 0.000001.
type price string

func (p *price) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = price(s)
		return nil
	}
	if string(b) == "null" {
		*p = ""
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*p = price(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

func (l modelList) descriptors() []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(l.Data))
	for _, m := range l.Data {
		d := ModelDescriptor{
			ID:            m.ID,
			Name:          m.Name,
			Description:   m.Description,
			ContextLength: m.ContextLength,
		}
		if d.Name == "" {
			d.Name = m.ID
		}
		if m.Pricing != nil {
			d.Pricing = &Pricing{Prompt: string(m.Pricing.Prompt), Completion: string(m.Pricing.Completion)}
		}
		out = append(out, d)
	}
	return out
}
