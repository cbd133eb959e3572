// Package agent is the privileged half of the capture pipeline: it holds the
// bearer credential, keeps local stats, and forwards usage events to the
// aggregation service through a retrying delivery queue.
package agent

import (
	"encoding/json"
	"fmt"
)

// Message is the closed set of requests a capture surface can send to the
// agent. Adding a variant forces every dispatch site to handle it.
type Message interface {
	messageType() string
}

type StoreToken struct {
	Token string `json:"token"`
}

type PromptSent struct {
	Model       string  `json:"model"`
	InputTokens int     `json:"inputTokens"`
	CO2         float64 `json:"co2"`
}

type ResponseTokens struct {
	Model  string  `json:"model"`
	Tokens int     `json:"tokens"`
	CO2    float64 `json:"co2"`
}

type GetStats struct{}

type ResetStats struct{}

type Logout struct{}

func (StoreToken) messageType() string     { return "STORE_TOKEN" }
func (PromptSent) messageType() string     { return "PROMPT_SENT" }
func (ResponseTokens) messageType() string { return "RESPONSE_TOKENS" }
func (GetStats) messageType() string       { return "GET_STATS" }
func (ResetStats) messageType() string     { return "RESET_STATS" }
func (Logout) messageType() string         { return "LOGOUT" }

// ParseMessage decodes a type-tagged JSON message.
func ParseMessage(data []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch envelope.Type {
	case "STORE_TOKEN":
		var msg StoreToken
		return msg, json.Unmarshal(data, &msg)
	case "PROMPT_SENT":
		var msg PromptSent
		return msg, json.Unmarshal(data, &msg)
	case "RESPONSE_TOKENS":
		var msg ResponseTokens
		return msg, json.Unmarshal(data, &msg)
	case "GET_STATS":
		return GetStats{}, nil
	case "RESET_STATS":
		return ResetStats{}, nil
	case "LOGOUT":
		return Logout{}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", envelope.Type)
	}
}
