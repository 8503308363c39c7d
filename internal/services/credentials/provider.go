package credentials

import "context"

// PromptOptions carries presentation hints for a passphrase prompt.
type PromptOptions struct {
	Title       string
	Message     string
	AccountName string
}

// PassphraseProvider is the one UI-facing capability of the subsystem.
// Production wires a modal or terminal prompt; tests return fixed
// strings.
type PassphraseProvider interface {
	Prompt(ctx context.Context, accountID string, opts PromptOptions) (string, error)
}

// PromptFunc adapts a function to the PassphraseProvider interface.
type PromptFunc func(ctx context.Context, accountID string, opts PromptOptions) (string, error)

// Prompt calls f.
func (f PromptFunc) Prompt(ctx context.Context, accountID string, opts PromptOptions) (string, error) {
	return f(ctx, accountID, opts)
}

// StaticProvider always returns the same passphrase. Intended for tests
// and non-interactive tooling.
type StaticProvider struct {
	Passphrase string
}

// Prompt returns the fixed passphrase.
func (p *StaticProvider) Prompt(ctx context.Context, accountID string, opts PromptOptions) (string, error) {
	return p.Passphrase, nil
}
