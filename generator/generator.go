package generator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/austin-honeyjar/honeyjar-server-sub004/completion"
	"github.com/austin-honeyjar/honeyjar-server-sub004/logger"
	"github.com/austin-honeyjar/honeyjar-server-sub004/model"
	"github.com/austin-honeyjar/honeyjar-server-sub004/util"
)

// AssetGenerator renders a step's generation instructions against the
// information collected upstream and asks the completion collaborator for the
// finished artifact text.
type AssetGenerator struct {
	client completion.Client
}

func NewAssetGenerator(client completion.Client) *AssetGenerator {
	return &AssetGenerator{client: client}
}

// Generate produces the artifact. collected is keyed by context key of the
// source step names; feedback, when non-empty, turns the call into a revision
// of the previously generated artifact.
func (g *AssetGenerator) Generate(ctx context.Context, conf model.AssetCreationConfig, collected map[string]any, stepContext []model.StepContext, previousArtifact string, feedback string) (string, error) {
	instructions := util.ResolveTemplate(collected, conf.Instructions)
	var b strings.Builder
	b.WriteString("You are producing a finished content artifact of kind " + string(conf.AssetKind) + ".\n")
	b.WriteString(instructions)
	if feedback != "" {
		b.WriteString("\n\nThis is a revision. Previous draft:\n")
		b.WriteString(previousArtifact)
		b.WriteString("\n\nApply this feedback:\n")
		b.WriteString(feedback)
	}
	b.WriteString("\n\nReply with the artifact text only, no commentary.")

	artifact, err := g.client.Complete(ctx, model.CompletionRequest{
		Instructions: b.String(),
		Context:      stepContext,
	})
	if err != nil {
		logger.Error("asset generation failed", zap.String("kind", string(conf.AssetKind)), zap.Error(err))
		return "", fmt.Errorf("generating %s asset: %w", conf.AssetKind, err)
	}
	return strings.TrimSpace(artifact), nil
}
