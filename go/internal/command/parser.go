// Package command turns free-form kill reports such as "0630 東飛 過" into
// structured commands.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mcdev12/respawn/go/internal/inference"
)

// ErrParse is returned when input could not be turned into a complete command.
var ErrParse = errors.New("could not parse command")

// Parsed is the parser output. A nil field means the parser could not
// determine it; Error carries the parser's own explanation.
type Parsed struct {
	EntityName *string `json:"entityName"`
	Hour       *int    `json:"hour"`
	Minute     *int    `json:"minute"`
	IsPass     bool    `json:"isPass"`
	Error      string  `json:"error,omitempty"`
}

// Validate fails unless every field is present and no error was reported.
func (p Parsed) Validate() error {
	if p.Error != "" {
		return fmt.Errorf("%w: %s", ErrParse, p.Error)
	}
	if p.EntityName == nil || strings.TrimSpace(*p.EntityName) == "" {
		return fmt.Errorf("%w: no entity", ErrParse)
	}
	if p.Hour == nil || p.Minute == nil {
		return fmt.Errorf("%w: no time", ErrParse)
	}
	if !inference.ValidClock(*p.Hour, *p.Minute) {
		return fmt.Errorf("%w: %02d:%02d is not a valid time", ErrParse, *p.Hour, *p.Minute)
	}
	return nil
}

// Parser is an external command parser.
type Parser interface {
	Parse(ctx context.Context, input string) (Parsed, error)
}

// Chain tries each parser in order and returns the first valid result.
type Chain []Parser

func (c Chain) Parse(ctx context.Context, input string) (Parsed, error) {
	var (
		last    Parsed
		lastErr error
	)
	for _, p := range c {
		parsed, err := p.Parse(ctx, input)
		if err == nil && parsed.Validate() == nil {
			return parsed, nil
		}
		last, lastErr = parsed, err
	}
	if lastErr != nil {
		return Parsed{}, lastErr
	}
	if len(c) == 0 {
		return Parsed{Error: "no parser configured"}, nil
	}
	return last, nil
}

func ptr[T any](v T) *T {
	return &v
}
