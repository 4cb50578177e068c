package jellyfin

import (
	"math"
	"net/url"
	"strconv"
)

// DirectStreamURL returns the static stream URL for a media id, starting at
// startTicks.
func (c *Client) DirectStreamURL(mediaID string, startTicks int64) string {
	return c.endpoint("/Videos/"+url.PathEscape(mediaID)+"/stream",
		[2]string{"static", "true"},
		[2]string{"api_key", c.token},
		[2]string{"StartTimeTicks", strconv.FormatInt(startTicks, 10)},
	)
}

// TranscodeStreamURL returns an h264/aac re-encode URL at the given width.
// The height keeps a 16:9 frame.
func (c *Client) TranscodeStreamURL(mediaID string, width int, startTicks int64) string {
	return c.endpoint("/Videos/"+url.PathEscape(mediaID)+"/stream.mp4",
		[2]string{"api_key", c.token},
		[2]string{"VideoCodec", "h264"},
		[2]string{"AudioCodec", "aac"},
		[2]string{"Width", strconv.Itoa(width)},
		[2]string{"Height", strconv.Itoa(TranscodeHeight(width))},
		[2]string{"StartTimeTicks", strconv.FormatInt(startTicks, 10)},
	)
}

// TranscodeHeight is round(width * 9 / 16).
func TranscodeHeight(width int) int {
	return int(math.Round(float64(width) * 9 / 16))
}
