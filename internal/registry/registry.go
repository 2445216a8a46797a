// Package registry resolves the set of allowed source identifiers.
//
// The list lives in SSM Parameter Store and is fetched on every evaluation,
// never cached, so registry edits apply to the next object processed.
package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// DefaultParameter is the SSM parameter holding the serialized source id list.
const DefaultParameter = "/datalake/bronze/source_id-list"

// MatchMode selects how a source id is tested against the serialized list.
type MatchMode string

const (
	// MatchSubstring accepts any id that occurs anywhere in the raw value.
	// "SRC" is accepted by a registry containing "SRC10".
	MatchSubstring MatchMode = "substring"
	// MatchToken splits the raw value on commas, whitespace, quotes and
	// brackets and requires an exact token match.
	MatchToken MatchMode = "token"
)

// ParseMatchMode maps a config string to a MatchMode, defaulting to MatchSubstring.
func ParseMatchMode(s string) MatchMode {
	if MatchMode(strings.ToLower(strings.TrimSpace(s))) == MatchToken {
		return MatchToken
	}
	return MatchSubstring
}

// Sources is one fetched snapshot of the registry.
type Sources struct {
	Raw  string
	Mode MatchMode
}

// Contains reports whether sourceID is registered. Empty ids never match.
func (s Sources) Contains(sourceID string) bool {
	if sourceID == "" {
		return false
	}
	if s.Mode == MatchToken {
		for _, tok := range s.Tokens() {
			if tok == sourceID {
				return true
			}
		}
		return false
	}
	return strings.Contains(s.Raw, sourceID)
}

// Tokens splits the raw value into individual ids.
func (s Sources) Tokens() []string {
	return strings.FieldsFunc(s.Raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n', '\r', '"', '\'', '[', ']':
			return true
		}
		return false
	})
}

// Registry fetches the current Sources.
type Registry interface {
	Fetch(ctx context.Context) (Sources, error)
}

// SSMGetParameterAPI is the subset of *ssm.Client used by SSMRegistry.
type SSMGetParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMRegistry reads the source id list from one SSM parameter.
type SSMRegistry struct {
	client    SSMGetParameterAPI
	parameter string
	mode      MatchMode
}

// Compile-time interface check.
var _ Registry = (*SSMRegistry)(nil)

// NewSSMRegistry returns a registry reading parameter (DefaultParameter when empty).
func NewSSMRegistry(client SSMGetParameterAPI, parameter string, mode MatchMode) *SSMRegistry {
	if parameter == "" {
		parameter = DefaultParameter
	}
	return &SSMRegistry{client: client, parameter: parameter, mode: mode}
}

// Parameter returns the SSM parameter name.
func (r *SSMRegistry) Parameter() string { return r.parameter }

func (r *SSMRegistry) Fetch(ctx context.Context) (Sources, error) {
	start := time.Now()
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(r.parameter),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return Sources{}, fmt.Errorf("read source registry %s: %w", r.parameter, err)
	}
	if out.Parameter == nil {
		return Sources{}, fmt.Errorf("read source registry %s: empty parameter", r.parameter)
	}
	raw := aws.ToString(out.Parameter.Value)
	log.Debug().
		Str("param", r.parameter).
		Int("length", len(raw)).
		Dur("elapsed", time.Since(start)).
		Msg("Source registry loaded from SSM")
	return Sources{Raw: raw, Mode: r.mode}, nil
}

// Static is a fixed Registry, used by the CLI's --sources override and in tests.
type Static struct {
	Sources Sources
	Err     error
	// Calls counts Fetch invocations.
	Calls int
}

func (s *Static) Fetch(context.Context) (Sources, error) {
	s.Calls++
	return s.Sources, s.Err
}
