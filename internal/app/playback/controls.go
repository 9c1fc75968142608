package playback

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/groovebox/internal/domain/track"
)

// Guild-addressed controls for the chat and dashboard surfaces.
// Only Play creates a guild; the rest act on an existing actor.

// Play queues a track in guildID.
func (r *Registry) Play(ctx context.Context, guildID string, req PlayRequest) (PlayResult, error) {
	return r.Guild(guildID).Play(ctx, req)
}

// Pause pauses guildID.
func (r *Registry) Pause(ctx context.Context, guildID string) error {
	g, ok := r.Lookup(guildID)
	if !ok {
		return failure(errors.Wrap(ErrNotPlaying, "pause in state idle"))
	}
	return g.Pause(ctx)
}

// Resume resumes guildID.
func (r *Registry) Resume(ctx context.Context, guildID string) error {
	g, ok := r.Lookup(guildID)
	if !ok {
		return failure(errors.Wrap(ErrNotPaused, "resume in state idle"))
	}
	return g.Resume(ctx)
}

// Skip skips the current track of guildID.
func (r *Registry) Skip(ctx context.Context, guildID string) (*track.QueueEntry, error) {
	g, ok := r.Lookup(guildID)
	if !ok {
		return nil, failure(errors.Wrap(ErrNoTrack, "skip"))
	}
	return g.Skip(ctx)
}

// Stop stops guildID, optionally leaving its voice channel.
func (r *Registry) Stop(ctx context.Context, guildID string, disconnect bool) error {
	return r.Guild(guildID).Stop(ctx, disconnect)
}

// Shuffle shuffles the queue of guildID.
func (r *Registry) Shuffle(ctx context.Context, guildID string) error {
	return r.Guild(guildID).Shuffle(ctx)
}

// SetLoop toggles looping in guildID.
func (r *Registry) SetLoop(ctx context.Context, guildID string, enabled bool) error {
	return r.Guild(guildID).SetLoop(ctx, enabled)
}

// SetVolume sets the volume of guildID.
func (r *Registry) SetVolume(ctx context.Context, guildID string, volume float64) (float64, error) {
	return r.Guild(guildID).SetVolume(ctx, volume)
}

// Remove deletes a queued entry of guildID.
func (r *Registry) Remove(ctx context.Context, guildID string, id int64) (bool, error) {
	return r.Guild(guildID).Remove(ctx, id)
}

// List returns the current track and queue head of guildID.
func (r *Registry) List(ctx context.Context, guildID string, limit int) (ListResult, error) {
	g, ok := r.Lookup(guildID)
	if !ok {
		return r.idleList(ctx, guildID, limit)
	}
	return g.List(ctx, limit)
}
