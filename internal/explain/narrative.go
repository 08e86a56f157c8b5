package explain

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ops-copilot/internal/model"
)

// Narrator renders a short operator-facing narrative for an
// explanation. Implementations must not mutate the result.
type Narrator interface {
	Narrate(ctx context.Context, result *model.ExplainResult) (string, error)
}

const (
	narrativeModel     = "claude-haiku-4-5-20251001"
	narrativeMaxTokens = 400

	narrativeSystem = "You are an operations analyst. Given a KPI movement and its ranked drivers, write a 2-3 sentence plain-language summary for an ops manager. State the movement, the dominant driver, and the single most useful next step. No preamble, no markdown."
)

// ClaudeNarrator generates narratives with the Anthropic API.
type ClaudeNarrator struct {
	client sdk.Client
}

func NewClaudeNarrator(apiKey string) *ClaudeNarrator {
	return &ClaudeNarrator{client: sdk.NewClient(option.WithAPIKey(apiKey))}
}

func (n *ClaudeNarrator) Narrate(ctx context.Context, result *model.ExplainResult) (string, error) {
	msg, err := n.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     narrativeModel,
		MaxTokens: narrativeMaxTokens,
		System:    []sdk.TextBlockParam{{Text: narrativeSystem}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(narrativePrompt(result))),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "explain: generate narrative")
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

func narrativePrompt(result *model.ExplainResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "KPI %s on %s moved to %.2f from a baseline of %.2f (delta %+.2f).\n",
		result.KpiName, result.Date, result.CurrentValue, result.BaselineValue, result.Delta)
	sb.WriteString("Ranked drivers:\n")
	for i, d := range result.RankedDrivers {
		fmt.Fprintf(&sb, "%d. %s=%s: %.2f -> %.2f (contribution %.0f%%)\n",
			i+1, d.DimensionName, d.DimensionValue, d.MetricBefore, d.MetricAfter, d.ContributionShare*100)
	}
	return sb.String()
}
