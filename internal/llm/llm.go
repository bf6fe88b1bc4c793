// Package llm provides text generation backends for answering questions.
package llm

import (
	"context"
	"strings"
	"sync"
)

// Generator turns a prompt into a completion.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// StaticGenerator returns a fixed answer. It is used for offline runs and
// tests where no language model is reachable.
type StaticGenerator struct {
	Answer string

	mu      sync.Mutex
	prompts []string
}

// NewStaticGenerator returns a generator that always answers with answer.
// An empty answer echoes the question line of each prompt instead.
func NewStaticGenerator(answer string) *StaticGenerator {
	return &StaticGenerator{Answer: answer}
}

// Generate returns the fixed answer.
func (g *StaticGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.Answer != "" {
		return g.Answer, nil
	}
	for _, line := range strings.Split(prompt, "\n") {
		if q, ok := strings.CutPrefix(line, "Question: "); ok {
			return "No language model is configured. You asked: " + q, nil
		}
	}
	return "No language model is configured.", nil
}

// Prompts returns every prompt received so far, oldest first.
func (g *StaticGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}
