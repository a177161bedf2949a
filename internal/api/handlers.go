package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openusb/usbhubd/internal/hub"
	"github.com/openusb/usbhubd/internal/session"
)

// handleNotFound serves the legacy 404 payload for unknown endpoints
// and disallowed methods alike.
func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, msgEndpointUnknown)
}

// handleDeviceInfo serves GET /device/info.
func (s *Server) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.session.Info(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleChannelStatus serves GET /channel/{function}/{channel}.
//
// The response is the historical scalar shape:
//
//	{"channel": 2, "status": 1}
func (s *Server) handleChannelStatus(function string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, ok := s.channelParam(w, r)
		if !ok {
			return
		}

		status, err := s.queryStatus(r, function, []hub.Channel{ch})
		if err != nil {
			s.writeSessionError(w, err)
			return
		}

		_, state, _ := status.Single()
		writeJSON(w, http.StatusOK, map[string]int{
			"channel": int(ch),
			"status":  int(state),
		})
	}
}

// handleBatchStatus serves GET /channel/{function}?channels=1,3.
// Without a channels parameter it reports all four channels.
//
// The response is the mapping shape:
//
//	{"channels": {"1": 0, "3": 1}}
func (s *Server) handleBatchStatus(function string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("channels")
		channels := allChannels()
		if raw != "" {
			var ok bool
			channels, ok = parseChannels(w, raw)
			if !ok {
				return
			}
		}

		status, err := s.queryStatus(r, function, channels)
		if err != nil {
			s.writeSessionError(w, err)
			return
		}

		states := make(map[string]int, len(channels))
		for ch, st := range status.Map() {
			states[strconv.Itoa(int(ch))] = int(st)
		}
		writeJSON(w, http.StatusOK, map[string]any{"channels": states})
	}
}

// handleSetChannels serves POST /channel/{function}?channels=1,2&state=1.
//
// The response reports whether the device acknowledged the change for
// every requested channel:
//
//	{"success": true}
func (s *Server) handleSetChannels(function string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		rawChannels := q.Get("channels")
		rawState := q.Get("state")
		if rawChannels == "" || rawState == "" {
			writeBadRequest(w, msgInvalidParams)
			return
		}

		// Channels are validated in full before state is even parsed,
		// preserving the original service's error precedence.
		channels, ok := parseChannels(w, rawChannels)
		if !ok {
			return
		}

		stateInt, err := strconv.Atoi(rawState)
		if err != nil {
			writeBadRequest(w, msgInvalidParams)
			return
		}
		state := hub.State(stateInt)
		if !state.Valid() {
			writeBadRequest(w, msgInvalidState)
			return
		}

		var acked bool
		switch function {
		case "power":
			acked, err = s.session.SetPower(r.Context(), channels, state)
		default:
			acked, err = s.session.SetDataline(r.Context(), channels, state)
		}
		if err != nil {
			s.writeSessionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"success": acked})
	}
}

// handleHealth serves GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stats := s.session.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"connected": stats.Connected,
		"port":      stats.Port,
	})
}

// handleMetrics serves GET /metrics: session counters plus uptime.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	stats := s.session.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"session":        stats,
		"uptime_seconds": int64(time.Since(stats.StartedAt).Seconds()),
	})
}

// channelParam extracts and validates the {channel} path parameter.
// On failure the error response has already been written.
func (s *Server) channelParam(w http.ResponseWriter, r *http.Request) (hub.Channel, bool) {
	raw := chi.URLParam(r, "channel")
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeBadRequest(w, msgInvalidChannel)
		return 0, false
	}

	ch := hub.Channel(n)
	if !ch.Valid() {
		writeBadRequest(w, msgChannelRange)
		return 0, false
	}
	return ch, true
}

// parseChannels parses a comma-separated channel list from a query
// parameter. On failure the error response has already been written.
func parseChannels(w http.ResponseWriter, raw string) ([]hub.Channel, bool) {
	parts := strings.Split(raw, ",")
	channels := make([]hub.Channel, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			writeBadRequest(w, msgInvalidParams)
			return nil, false
		}
		channels = append(channels, hub.Channel(n))
	}

	for _, ch := range channels {
		if !ch.Valid() {
			writeBadRequest(w, msgChannelsRange)
			return nil, false
		}
	}
	return channels, true
}

func allChannels() []hub.Channel {
	channels := make([]hub.Channel, 0, hub.MaxChannel)
	for ch := hub.MinChannel; ch <= hub.MaxChannel; ch++ {
		channels = append(channels, ch)
	}
	return channels
}

func (s *Server) queryStatus(r *http.Request, function string, channels []hub.Channel) (session.Status, error) {
	if function == "power" {
		return s.session.PowerStatus(r.Context(), channels)
	}
	return s.session.DatalineStatus(r.Context(), channels)
}

// writeSessionError maps session failures onto the wire contract: a
// closed session is 503, everything else from the device is 500, both
// with the {"error": message} payload.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionClosed) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeDeviceError(w, err)
}
