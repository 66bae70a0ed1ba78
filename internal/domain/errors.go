package domain

import "errors"

// Sentinel errors for the relay engine.
var (
	// ErrProviderUnconfigured signals a provider invoked without credentials.
	ErrProviderUnconfigured = errors.New("translation provider unconfigured")
	// ErrProviderUpstream signals a non-success response from a provider.
	ErrProviderUpstream = errors.New("translation provider upstream error")
	// ErrProviderTransport signals a network or parse failure talking to a provider.
	ErrProviderTransport = errors.New("translation provider transport error")
	// ErrNoTranslationProduced signals that every provider failed for a leg.
	ErrNoTranslationProduced = errors.New("no translation produced")
	// ErrRecordNotFound signals a missing relay record.
	ErrRecordNotFound = errors.New("relay record not found")
	// ErrRelayDisabled signals an event for a channel without an active relay.
	ErrRelayDisabled = errors.New("relay disabled for channel")
	// ErrBroadcasterUnavailable signals that no broadcaster could be resolved
	// for the target channel.
	ErrBroadcasterUnavailable = errors.New("channel broadcaster unavailable")
)
