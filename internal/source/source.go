// Package source turns a library item into a playable preview stream.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/jellyfin"
)

var (
	ErrNoSeason  = errors.New("series has no seasons")
	ErrNoEpisode = errors.New("season has no episodes")
	// ErrPlayback is returned when both direct play and the transcoded
	// fallback were rejected.
	ErrPlayback = errors.New("preview playback failed")
)

// Mode is how a candidate stream is delivered.
type Mode int

const (
	DirectPlay Mode = iota
	TranscodedFallback
)

func (m Mode) String() string {
	switch m {
	case DirectPlay:
		return "direct"
	case TranscodedFallback:
		return "transcode"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Candidate is a resolved stream.
type Candidate struct {
	MediaID string
	Mode    Mode
	URL     string
}

// API is the part of the Jellyfin client the resolver uses.
type API interface {
	GetItem(ctx context.Context, itemID string) (*jellyfin.Item, error)
	GetSeasons(ctx context.Context, seriesID string) ([]jellyfin.Item, error)
	GetEpisodes(ctx context.Context, seriesID, seasonID string) ([]jellyfin.Item, error)
	DirectStreamURL(mediaID string, startTicks int64) string
	TranscodeStreamURL(mediaID string, width int, startTicks int64) string
}

// Player starts playback of a stream. Show returns once playback has begun
// or been rejected.
type Player interface {
	Show(ctx context.Context, url string, speed, seek float64) error
}

// Resolver maps item ids to playable media ids and builds stream URLs.
type Resolver struct {
	api API
	cfg config.Preview
}

// NewResolver creates a resolver.
func NewResolver(api API, cfg config.Preview) *Resolver {
	return &Resolver{api: api, cfg: cfg}
}

// Resolve returns the id of the media to play for itemID. Series resolve to
// their first episode of season one; seasons to their first episode.
func (r *Resolver) Resolve(ctx context.Context, itemID string) (string, error) {
	item, err := r.api.GetItem(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch item %s: %w", itemID, err)
	}

	switch item.Type {
	case jellyfin.ItemSeries:
		return r.firstEpisodeOfSeries(ctx, item.ID)
	case jellyfin.ItemSeason:
		seriesID := item.SeriesID
		if seriesID == "" {
			seriesID = item.ID
		}
		return r.firstEpisode(ctx, seriesID, item.ID)
	default:
		return item.ID, nil
	}
}

func (r *Resolver) firstEpisodeOfSeries(ctx context.Context, seriesID string) (string, error) {
	seasons, err := r.api.GetSeasons(ctx, seriesID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch seasons for series %s: %w", seriesID, err)
	}
	season, ok := pickFirst(seasons)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSeason, seriesID)
	}
	return r.firstEpisode(ctx, seriesID, season.ID)
}

func (r *Resolver) firstEpisode(ctx context.Context, seriesID, seasonID string) (string, error) {
	episodes, err := r.api.GetEpisodes(ctx, seriesID, seasonID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch episodes for season %s: %w", seasonID, err)
	}
	episode, ok := pickFirst(episodes)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoEpisode, seasonID)
	}
	return episode.ID, nil
}

// pickFirst returns the item with index 1, else the first in server order.
func pickFirst(items []jellyfin.Item) (jellyfin.Item, bool) {
	for _, it := range items {
		if it.HasIndex(1) {
			return it, true
		}
	}
	if len(items) == 0 {
		return jellyfin.Item{}, false
	}
	return items[0], true
}

// Direct returns the static stream candidate for mediaID.
func (r *Resolver) Direct(mediaID string) Candidate {
	return Candidate{
		MediaID: mediaID,
		Mode:    DirectPlay,
		URL:     r.api.DirectStreamURL(mediaID, r.startTicks()),
	}
}

// Fallback returns the transcoded stream candidate for mediaID.
func (r *Resolver) Fallback(mediaID string) Candidate {
	return Candidate{
		MediaID: mediaID,
		Mode:    TranscodedFallback,
		URL:     r.api.TranscodeStreamURL(mediaID, r.cfg.TranscodeWidth, r.startTicks()),
	}
}

func (r *Resolver) startTicks() int64 {
	return jellyfin.SecondsToTicks(r.cfg.StartTime)
}

// Negotiate resolves itemID and plays it on player, trying direct play first
// and the transcoded stream once if direct play is rejected.
func (r *Resolver) Negotiate(ctx context.Context, itemID string, player Player) (Candidate, error) {
	mediaID, err := r.Resolve(ctx, itemID)
	if err != nil {
		return Candidate{}, err
	}

	speed := r.cfg.PlaybackSpeed
	seek := r.cfg.StartSeconds()

	direct := r.Direct(mediaID)
	err = player.Show(ctx, direct.URL, speed, seek)
	if err == nil {
		return direct, nil
	}
	if ctx.Err() != nil {
		return Candidate{}, ctx.Err()
	}
	log.Debug().Err(err).Str("media_id", mediaID).Msg("Direct play rejected, trying transcoded stream")

	fallback := r.Fallback(mediaID)
	if err := player.Show(ctx, fallback.URL, speed, seek); err != nil {
		return Candidate{}, fmt.Errorf("%w: %s: %w", ErrPlayback, mediaID, err)
	}
	return fallback, nil
}
