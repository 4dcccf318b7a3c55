package generation

import (
	"context"
	"fmt"
	"strings"
)

// MockGenerator answers without network access, echoing the question and the amount of
// context it was given. Used in mock mode and tests.
type MockGenerator struct{}

// NewMockGenerator returns a MockGenerator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate returns a canned answer.
func (g *MockGenerator) Generate(ctx context.Context, systemPrompt, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("[mock answer] %q (context: %d characters)", strings.TrimSpace(question), len(systemPrompt)), nil
}

// ModelID identifies the mock model.
func (g *MockGenerator) ModelID() string {
	return "mock-chat"
}
