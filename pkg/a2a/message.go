package a2a

import "strings"

/*
Message represents all non‑artifact communication between client & agent.
*/
type Message struct {
	Role     string         `json:"role"` // "user" or "agent"
	Parts    []Part         `json:"parts"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewTextMessage(role string, text string) *Message {
	return &Message{
		Role: role,
		Parts: []Part{
			{Type: PartTypeText, Text: text},
		},
	}
}

func NewFileMessage(role string, file *FilePart) *Message {
	return &Message{
		Role: role,
		Parts: []Part{
			{Type: PartTypeFile, File: file},
		},
	}
}

func NewDataMessage(role string, data map[string]any) *Message {
	return &Message{
		Role: role,
		Parts: []Part{
			{Type: PartTypeData, Data: data},
		},
	}
}

/*
NewToolCallMessage describes a tool invocation the engine decided to make.
The call arguments travel as a data part, the identifying fields as
metadata, so protocol consumers can render the call without parsing text.
*/
func NewToolCallMessage(callID, name string, args map[string]any) *Message {
	return &Message{
		Role: "agent",
		Parts: []Part{
			{Type: PartTypeData, Data: args},
		},
		Metadata: map[string]any{
			"type":         "tool-call",
			"toolCallId":   callID,
			"toolCallName": name,
		},
	}
}

/*
NewToolCallResultMessage carries the outcome of a tool invocation back to
protocol consumers, paired to the originating call by toolCallId.
*/
func NewToolCallResultMessage(callID, name string, result Part) *Message {
	return &Message{
		Role:  "agent",
		Parts: []Part{result},
		Metadata: map[string]any{
			"type":         "tool-call-result",
			"toolCallId":   callID,
			"toolCallName": name,
		},
	}
}

func (msg *Message) String() string {
	var sb strings.Builder

	for _, part := range msg.Parts {
		sb.WriteString(part.Text)
	}

	return sb.String()
}
