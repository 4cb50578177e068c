package jellyfin

import "encoding/json"

// ItemType is the server's item kind. Only the kinds the preview engine
// distinguishes are named; everything else decodes to ItemOther.
type ItemType string

const (
	ItemMovie   ItemType = "Movie"
	ItemEpisode ItemType = "Episode"
	ItemSeason  ItemType = "Season"
	ItemSeries  ItemType = "Series"
	ItemOther   ItemType = "Other"
)

// UnmarshalJSON maps unknown server types to ItemOther.
func (t *ItemType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch ItemType(s) {
	case ItemMovie, ItemEpisode, ItemSeason, ItemSeries:
		*t = ItemType(s)
	default:
		*t = ItemOther
	}
	return nil
}

// Item is the subset of BaseItemDto the preview engine reads.
type Item struct {
	ID          string   `json:"Id"`
	Name        string   `json:"Name"`
	Type        ItemType `json:"Type"`
	IndexNumber *int     `json:"IndexNumber,omitempty"`
	// SeriesID is set on seasons and episodes.
	SeriesID string `json:"SeriesId,omitempty"`
}

// HasIndex reports whether the item's ordinal index equals n.
func (i Item) HasIndex(n int) bool {
	return i.IndexNumber != nil && *i.IndexNumber == n
}

type itemsResponse struct {
	Items []Item `json:"Items"`
}

// TicksPerSecond is the server's native time unit: 100ns ticks.
const TicksPerSecond = 10_000_000

// SecondsToTicks converts whole seconds to server ticks.
func SecondsToTicks(seconds int) int64 {
	return int64(seconds) * TicksPerSecond
}
