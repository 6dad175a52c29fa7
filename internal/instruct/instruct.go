// Package instruct breaks a spoken instruction into atomic steps with an LLM.
package instruct

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"utter/internal/config"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"
)

// ErrNoSteps is returned when the model reply holds no usable steps.
var ErrNoSteps = errors.New("no steps in model reply")

// CompleteFunc sends one system+user exchange and returns the reply text.
type CompleteFunc func(ctx context.Context, system, prompt string) (string, error)

// Plan is the step breakdown of one instruction.
type Plan struct {
	Instruction string   `json:"instruction"`
	Steps       []string `json:"steps"`
	Raw         string   `json:"-"`
}

// Planner asks a model for a step breakdown.
type Planner struct {
	system   string
	timeout  time.Duration
	complete CompleteFunc
}

// New builds a planner from the [instruct] config section.
func New(cfg *config.Config) (*Planner, error) {
	ic := cfg.Instruct
	if strings.TrimSpace(ic.Model) == "" {
		return nil, fmt.Errorf("instruct.model is empty")
	}
	var opts []anyllmlib.Option
	if ic.APIKeyEnv != "" {
		key := os.Getenv(ic.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("%s is not set", ic.APIKeyEnv)
		}
		opts = append(opts, anyllmlib.WithAPIKey(key))
	}
	backend, err := newBackend(ic.Provider, opts...)
	if err != nil {
		return nil, fmt.Errorf("instruct: %w", err)
	}
	var temp *float64
	if ic.Temperature != 0 {
		t := ic.Temperature
		temp = &t
	}
	model := ic.Model
	complete := func(ctx context.Context, system, prompt string) (string, error) {
		msgs := []anyllmlib.Message{}
		if system != "" {
			msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: system})
		}
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleUser, Content: prompt})
		resp, err := backend.Completion(ctx, anyllmlib.CompletionParams{
			Model:       model,
			Messages:    msgs,
			Temperature: temp,
		})
		if err != nil {
			return "", fmt.Errorf("completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("empty choices in response")
		}
		return resp.Choices[0].Message.ContentString(), nil
	}
	return NewWithFunc(ic.SystemPrompt, time.Duration(ic.TimeoutSec*float64(time.Second)), complete), nil
}

// NewWithFunc builds a planner over an arbitrary completion function.
func NewWithFunc(system string, timeout time.Duration, fn CompleteFunc) *Planner {
	if strings.TrimSpace(system) == "" {
		system = config.DefaultSystemPrompt
	}
	return &Planner{system: system, timeout: timeout, complete: fn}
}

// Steps asks the model to split instruction into atomic steps.
func (p *Planner) Steps(ctx context.Context, instruction string) (Plan, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return Plan{}, fmt.Errorf("empty instruction")
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	raw, err := p.complete(ctx, p.system, instruction)
	if err != nil {
		return Plan{}, err
	}
	steps, err := ParseSteps(raw)
	if err != nil {
		return Plan{Instruction: instruction, Raw: raw}, err
	}
	return Plan{Instruction: instruction, Steps: steps, Raw: raw}, nil
}

// ParseSteps extracts the "steps" list from a model reply. Markdown code
// fences and prose around the JSON object are tolerated.
func ParseSteps(reply string) ([]string, error) {
	body := stripFences(reply)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object", ErrNoSteps)
	}
	var out struct {
		Steps []string `json:"steps"`
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSteps, err)
	}
	steps := make([]string, 0, len(out.Steps))
	for _, s := range out.Steps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		return nil, ErrNoSteps
	}
	return steps, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	i := strings.Index(s, "```")
	if i < 0 {
		return s
	}
	rest := s[i+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	if j := strings.Index(rest, "```"); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

func newBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gemini":
		return gemini.New(opts...)
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: gemini, openai, anthropic, ollama", name)
	}
}
