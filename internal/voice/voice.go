// Package voice places outbound calls through the telephony provider.
package voice

import (
	"context"
	"errors"
)

// ErrCarrierReject reports an explicit carrier rejection of the dial
// attempt. Unlike transient dial failures it is not retryable.
var ErrCarrierReject = errors.New("voice: carrier rejected call")

// Client is the voice-provider capability contract. PlaceCall is
// asynchronous: completion arrives later on the webhook identified by the
// returned call id. Implementations must be safe for concurrent use.
type Client interface {
	// PlaceCall dials the number with the given persona prompt and returns
	// the provider's call id.
	PlaceCall(ctx context.Context, personaPrompt, phoneNumber string) (callID string, err error)

	// FetchRecording downloads the audio for a completed call.
	FetchRecording(ctx context.Context, callID string) (audio []byte, format string, err error)
}
