package graph

import (
	"context"

	"github.com/a2anet/a2anet-go/pkg/a2a"
)

/*
StepKind tags the outputs a graph engine may yield while reasoning.  A run
produces any number of message/artifact steps before ending in exactly one
of input-required, completed or failed.
*/
type StepKind string

const (
	// StepMessage is intermediate reasoning or tool output.
	StepMessage StepKind = "message"
	// StepArtifact is a discrete output produced mid-run.
	StepArtifact StepKind = "artifact"
	// StepInputRequired suspends the run until the caller supplies more input.
	StepInputRequired StepKind = "input-required"
	// StepCompleted ends the run successfully, optionally carrying a final artifact.
	StepCompleted StepKind = "completed"
	// StepFailed ends the run with a classified failure.
	StepFailed StepKind = "failed"
)

/*
Step is one yielded output of a graph run.  Which fields are populated
depends on Kind: Message for message and input-required steps, Artifact
for artifact steps (and optionally completed), Reason and Err for failed
steps.
*/
type Step struct {
	Kind     StepKind
	Message  *a2a.Message
	Artifact *a2a.Artifact
	Reason   string
	Err      error
}

func MessageStep(message *a2a.Message) Step {
	return Step{Kind: StepMessage, Message: message}
}

func ArtifactStep(artifact a2a.Artifact) Step {
	return Step{Kind: StepArtifact, Artifact: &artifact}
}

func InputRequiredStep(message *a2a.Message) Step {
	return Step{Kind: StepInputRequired, Message: message}
}

func CompletedStep(message *a2a.Message, artifact *a2a.Artifact) Step {
	return Step{Kind: StepCompleted, Message: message, Artifact: artifact}
}

func FailedStep(reason string, err error) Step {
	return Step{Kind: StepFailed, Reason: reason, Err: err}
}

/*
Input is what the bridge hands an engine for one run.  ContextID doubles
as the engine's checkpoint key: a resumed task runs with the same
ContextID and the full message history, so checkpointing engines pick up
where they suspended.
*/
type Input struct {
	TaskID    string
	ContextID string
	Message   a2a.Message
	History   []a2a.Message
	Metadata  map[string]any
}

/*
Engine is the boundary with the external graph-execution collaborator.
Run returns a lazily produced stream of steps and must close it when the
run ends; cancellation of ctx is the cooperative interrupt signal, checked
between steps.  Engines are never invoked again for a run once the bridge
has observed a cancellation.
*/
type Engine interface {
	Run(ctx context.Context, input Input) (<-chan Step, error)
}

// EngineFunc adapts a plain function to the Engine interface.
type EngineFunc func(ctx context.Context, input Input) (<-chan Step, error)

func (fn EngineFunc) Run(ctx context.Context, input Input) (<-chan Step, error) {
	return fn(ctx, input)
}
