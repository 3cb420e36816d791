// Package collaborators declares the external validation contracts the
// core depends on but does not implement (spec §6's "not owned by this
// system" boundary): URL safety/format validation and custom-alias
// format validation. Production wiring supplies a real implementation;
// this package only fixes the interface and a pass-through test double.
package collaborators

import "context"

// URLValidator validates a long URL before minting, and a custom alias
// both for format and for policy (reserved words, profanity, length).
type URLValidator interface {
	Validate(ctx context.Context, longURL string) error
	ValidateAlias(ctx context.Context, alias string) error
}

// NoopValidator accepts everything; used in tests where validation
// itself isn't under test.
type NoopValidator struct{}

// Validate implements URLValidator.
func (NoopValidator) Validate(context.Context, string) error { return nil }

// ValidateAlias implements URLValidator.
func (NoopValidator) ValidateAlias(context.Context, string) error { return nil }
