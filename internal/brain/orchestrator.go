package brain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nabdhq/nabd/internal/agent"
	"github.com/nabdhq/nabd/internal/gemini"
	"github.com/nabdhq/nabd/internal/tools"
)

const (
	phaseTimeout = 30 * time.Second

	selectionTemperature     = 0.3
	selectionTopK            = 20
	selectionTopP            = 0.9
	selectionMaxOutputTokens = 1000

	replyTopK            = 40
	replyTopP            = 0.95
	replyMaxOutputTokens = 800
)

// fallbackReply is returned when the model produces no text.
const fallbackReply = "عذراً، واجهت مشكلة في التفكير. حاول مرة أخرى! 🔄"

// Generator is the text generation backend the orchestrator drives.
type Generator interface {
	Generate(ctx context.Context, model string, req gemini.GenerateRequest) (gemini.GenerateResult, error)
}

// ToolRunner executes a single model-requested function call.
type ToolRunner interface {
	Execute(ctx context.Context, call gemini.FunctionCall, allowed []string) tools.Result
}

// Answer is the outcome of one orchestrated conversation turn.
type Answer struct {
	Reply       string
	ToolResults []tools.Result
}

// Orchestrator runs the two-phase conversation loop: a tool-selection
// generation, sequential execution of the requested tools, then a reply
// generation grounded in the tool output.
type Orchestrator struct {
	generator Generator
	runner    ToolRunner
	model     string
	logger    *slog.Logger
}

func NewOrchestrator(generator Generator, runner ToolRunner, model string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		runner:    runner,
		model:     model,
		logger:    logger,
	}
}

// Respond answers one user query as the given persona.
func (o *Orchestrator) Respond(ctx context.Context, p agent.Persona, query string, history []Turn) (Answer, error) {
	o.logger.Info("phase 1: tool selection", "agent", p.Name)

	enabled := tools.Enabled(p.ToolsEnabled)
	selReq := gemini.GenerateRequest{
		Messages:        selectionMessages(p, query, history),
		Functions:       tools.Declarations(enabled),
		Temperature:     selectionTemperature,
		TopK:            selectionTopK,
		TopP:            selectionTopP,
		MaxOutputTokens: selectionMaxOutputTokens,
	}

	selCtx, cancel := context.WithTimeout(ctx, phaseTimeout)
	selection, err := o.generator.Generate(selCtx, o.model, selReq)
	cancel()
	if err != nil {
		return Answer{}, fmt.Errorf("tool selection: %w", err)
	}

	// Execute requested tools in the order the model asked for them.
	var results []tools.Result
	if len(selection.Calls) > 0 {
		o.logger.Info("executing tools", "count", len(selection.Calls))
		for _, call := range selection.Calls {
			r := o.runner.Execute(ctx, call, p.ToolsEnabled)
			results = append(results, r)
			if r.Success {
				o.logger.Info("tool executed", "tool", r.Name, "items", r.Items)
			} else {
				o.logger.Warn("tool failed", "tool", r.Name, "error", r.Err)
			}
		}
	}

	o.logger.Info("phase 2: response generation")

	replyReq := gemini.GenerateRequest{
		Messages:        []gemini.Message{{Role: "user", Content: replyPrompt(p, query, results)}},
		Temperature:     p.Temperature,
		TopK:            replyTopK,
		TopP:            replyTopP,
		MaxOutputTokens: replyMaxOutputTokens,
		SafetyFiltered:  true,
	}

	replyCtx, cancel := context.WithTimeout(ctx, phaseTimeout)
	reply, err := o.generator.Generate(replyCtx, o.model, replyReq)
	cancel()
	if err != nil {
		return Answer{}, fmt.Errorf("response generation: %w", err)
	}

	text := reply.Text
	if text == "" {
		text = fallbackReply
	}

	return Answer{Reply: text, ToolResults: results}, nil
}
