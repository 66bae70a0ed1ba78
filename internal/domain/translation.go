package domain

import "context"

// Language is an upper-case ISO 639-1 target language code ("JA", "EN").
type Language string

// Translation is the normalized output of a single provider call.
// DetectedSourceLang is empty when the provider does not report detection.
type Translation struct {
	Text               string
	DetectedSourceLang Language
}

// Translator is a single translation backend. Implementations return a
// normalized Translation or a sentinel-wrapped error (ErrProviderUnconfigured,
// ErrProviderUpstream, ErrProviderTransport); they never retry internally and
// never panic across this boundary.
type Translator interface {
	Translate(ctx context.Context, text string, target Language) (Translation, error)
	Name() string
}
