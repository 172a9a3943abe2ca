package a2a

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

/*
Task is one unit of agent work tracked from submission to a terminal
outcome.  Transitions records every status the task has passed through in
order, so consumers can replay the full lifecycle.
*/
type Task struct {
	ID          string         `json:"id"`
	ContextID   string         `json:"contextId,omitempty"`
	Status      TaskStatus     `json:"status"`
	Transitions []TaskStatus   `json:"transitions,omitempty"`
	History     []Message      `json:"history,omitempty"`
	Artifacts   []Artifact     `json:"artifacts,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewTask(id, contextID string) *Task {
	return &Task{
		ID:        id,
		ContextID: contextID,
	}
}

func NewTaskFromRequest(body []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

/*
ToStatus moves the task to a new state and appends the transition to the
task's lifecycle record.  Callers are expected to validate the transition
first (the task store does this on every update).
*/
func (task *Task) ToStatus(state TaskState, message *Message) {
	log.Info("task status update", "task", task.ID, "state", state)

	task.Status = TaskStatus{
		State:     state,
		Message:   message,
		Timestamp: time.Now(),
	}
	task.Transitions = append(task.Transitions, task.Status)
}

func (task *Task) LastMessage() *Message {
	if len(task.History) == 0 {
		return nil
	}

	return &task.History[len(task.History)-1]
}

func (task *Task) AddMessage(message Message) {
	task.History = append(task.History, message)
}

func (task *Task) AddArtifact(artifact Artifact) {
	artifact.Index = len(task.Artifacts)
	task.Artifacts = append(task.Artifacts, artifact)
}

/*
Clone returns a copy whose slices are detached from the receiver, so a
caller can hand out snapshots without exposing store-owned state.
*/
func (task *Task) Clone() *Task {
	clone := *task
	clone.Transitions = append([]TaskStatus(nil), task.Transitions...)
	clone.History = append([]Message(nil), task.History...)
	clone.Artifacts = append([]Artifact(nil), task.Artifacts...)

	if task.Metadata != nil {
		clone.Metadata = make(map[string]any, len(task.Metadata))
		for k, v := range task.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}

func (task *Task) String() string {
	var sb strings.Builder

	// Styles
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("212")).
		Bold(true)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	sectionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	// Indentation and box-drawing chars
	indent := "   "
	bullet := "│ "

	// Task Details Header
	sb.WriteString(headerStyle.Render("Task Details") + "\n")
	sb.WriteString(bullet + labelStyle.Render("ID: ") + valueStyle.Render(task.ID) + "\n")
	if task.ContextID != "" {
		sb.WriteString(bullet + labelStyle.Render("Context ID: ") + valueStyle.Render(task.ContextID) + "\n")
	}

	// Status Section
	sb.WriteString("\n" + sectionStyle.Render("Status") + "\n")
	sb.WriteString(bullet + labelStyle.Render("State: ") + valueStyle.Render(string(task.Status.State)) + "\n")
	if task.Status.Message != nil {
		sb.WriteString(bullet + labelStyle.Render("Message: ") + valueStyle.Render(task.Status.Message.String()) + "\n")
	}

	sb.WriteString(bullet + labelStyle.Render("Timestamp: ") + valueStyle.Render(task.Status.Timestamp.Format(time.RFC3339)) + "\n")

	// Transitions Section
	if len(task.Transitions) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Transitions") + "\n")
		for i, status := range task.Transitions {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("%d: ", i+1)) + valueStyle.Render(string(status.State)) + "\n")
		}
	}

	// History Section
	if len(task.History) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("History") + "\n")
		for i, message := range task.History {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Message %d", i+1)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("Role: ") + valueStyle.Render(message.Role) + "\n")
			for _, part := range message.Parts {
				sb.WriteString(bullet + indent + labelStyle.Render("Content: ") + valueStyle.Render(part.Text) + "\n")
			}
		}
	}

	// Artifacts Section
	if len(task.Artifacts) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Artifacts") + "\n")
		for i, artifact := range task.Artifacts {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Artifact %d", i+1)) + "\n")
			if artifact.Name != nil {
				sb.WriteString(bullet + indent + labelStyle.Render("Name: ") + valueStyle.Render(*artifact.Name) + "\n")
			}
			if artifact.Description != nil {
				sb.WriteString(bullet + indent + labelStyle.Render("Description: ") + valueStyle.Render(*artifact.Description) + "\n")
			}
			for j, part := range artifact.Parts {
				sb.WriteString(bullet + indent + labelStyle.Render(fmt.Sprintf("Part %d: ", j+1)) + valueStyle.Render(part.Text) + "\n")
			}
		}
	}

	// Metadata Section
	if len(task.Metadata) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Metadata") + "\n")
		keys := make([]string, 0, len(task.Metadata))
		for k := range task.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(bullet + labelStyle.Render(k+": ") + valueStyle.Render(fmt.Sprintf("%v", task.Metadata[k])) + "\n")
		}
	}

	return sb.String()
}
