package model

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Holder publishes the active bundle. Readers take the current pointer
// once per prediction, so a reload never changes a bundle mid-call.
type Holder struct {
	current atomic.Pointer[Bundle]
	logger  zerolog.Logger
}

// NewHolder creates a holder with no bundle.
func NewHolder(logger zerolog.Logger) *Holder {
	return &Holder{logger: logger}
}

// Current returns the active bundle, or nil when none is loaded.
func (h *Holder) Current() *Bundle {
	return h.current.Load()
}

// Set replaces the active bundle. A nil bundle clears it.
func (h *Holder) Set(b *Bundle) {
	h.current.Store(b)
}

// Reload loads a bundle from src and swaps it in. On failure the previous
// bundle stays active.
func (h *Holder) Reload(ctx context.Context, src Source) error {
	bundle, err := src.Load(ctx)
	if err != nil {
		h.logger.Error().Err(err).Str("source", src.String()).Msg("model bundle reload failed")
		return err
	}

	previous := h.current.Swap(bundle)
	event := h.logger.Info().
		Str("source", src.String()).
		Str("model_name", bundle.ModelName).
		Int("features", len(bundle.FeatureNames))
	if previous != nil {
		event = event.Str("previous_model", previous.ModelName)
	}
	event.Msg("model bundle loaded")
	return nil
}
