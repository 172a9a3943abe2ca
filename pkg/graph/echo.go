package graph

import (
	"context"

	"github.com/a2anet/a2anet-go/pkg/a2a"
)

/*
EchoEngine is a trivial engine that echoes the incoming message back as an
artifact and completes.  It keeps the out of the box serve experience
pleasant and doubles as a smoke-test collaborator.
*/
type EchoEngine struct{}

func NewEchoEngine() *EchoEngine {
	return &EchoEngine{}
}

func (engine *EchoEngine) Run(ctx context.Context, input Input) (<-chan Step, error) {
	steps := make(chan Step, 3)

	go func() {
		defer close(steps)

		text := input.Message.String()

		select {
		case steps <- MessageStep(a2a.NewTextMessage("agent", "echoing input")):
		case <-ctx.Done():
			return
		}

		select {
		case steps <- ArtifactStep(a2a.NewTextArtifact("echo", "echoed input", text)):
		case <-ctx.Done():
			return
		}

		select {
		case steps <- CompletedStep(a2a.NewTextMessage("agent", "echo complete"), nil):
		case <-ctx.Done():
		}
	}()

	return steps, nil
}
