package command

import (
	"context"
	"strings"

	"github.com/mcdev12/respawn/go/internal/inference"
	"github.com/mcdev12/respawn/go/internal/models"
)

// passKeywords mark a report as passed: seen but not killed.
var passKeywords = []string{"過", "pass", "沒打", "miss"}

// Resolver maps names and aliases to catalog entities.
type Resolver interface {
	Resolve(nameOrAlias string) (models.Entity, bool)
}

// StrictParser understands "HHMM name [pass]" and "name HHMM [pass]".
// Aliases resolve to canonical names; unknown names are passed through
// unchanged.
type StrictParser struct {
	resolver Resolver
}

func NewStrictParser(resolver Resolver) *StrictParser {
	return &StrictParser{resolver: resolver}
}

func (p *StrictParser) Parse(_ context.Context, input string) (Parsed, error) {
	fields := strings.Fields(input)

	var parsed Parsed
	if n := len(fields); n > 0 && isPassKeyword(fields[n-1]) {
		parsed.IsPass = true
		fields = fields[:n-1]
	}
	if len(fields) < 2 {
		return Parsed{Error: `expected "HHMM name"`}, nil
	}

	var nameFields []string
	if hour, minute, err := inference.ParseClock(fields[0]); err == nil {
		parsed.Hour, parsed.Minute = ptr(hour), ptr(minute)
		nameFields = fields[1:]
	} else if hour, minute, err := inference.ParseClock(fields[len(fields)-1]); err == nil {
		parsed.Hour, parsed.Minute = ptr(hour), ptr(minute)
		nameFields = fields[:len(fields)-1]
	} else {
		return Parsed{Error: "no time found"}, nil
	}

	name := strings.Join(nameFields, " ")
	if strings.HasSuffix(name, "過") && len(nameFields) == 1 {
		if e, ok := p.resolver.Resolve(strings.TrimSuffix(name, "過")); ok {
			parsed.IsPass = true
			name = e.Name
		}
	}
	if e, ok := p.resolver.Resolve(name); ok {
		name = e.Name
	}
	parsed.EntityName = ptr(name)
	return parsed, nil
}

func isPassKeyword(s string) bool {
	for _, kw := range passKeywords {
		if strings.EqualFold(s, kw) {
			return true
		}
	}
	return false
}
