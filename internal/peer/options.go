package peer

import (
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/irdkwmnsb/webrtc-grabber/packages/streamer/internal/engine"
)

// Options are the per call settings passed as a query string, e.g. "bitrate=500000".
type Options struct {
	Bitrate engine.BitrateRange
}

// ParseOptions ignores unknown keys and invalid values.
func ParseOptions(raw string) Options {
	var opts Options

	values, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(raw), "?"))
	if err != nil {
		slog.Warn("can not parse options", "options", raw, "error", err)
		return opts
	}

	if v := values.Get("bitrate"); v != "" {
		bitrate, err := strconv.Atoi(v)
		if err != nil || bitrate <= 0 {
			slog.Warn("ignoring invalid bitrate option", "bitrate", v)
		} else {
			opts.Bitrate = engine.BitrateFromTarget(bitrate)
		}
	}

	return opts
}

func (o Options) trackOptions() engine.TrackOptions {
	return engine.TrackOptions{Bitrate: o.Bitrate}
}
