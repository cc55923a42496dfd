package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lumiere-trade/courier/internal/channel"
)

type publishResponse struct {
	Status         string `json:"status"`
	Channel        string `json:"channel"`
	ClientsReached int    `json:"clients_reached"`
	Timestamp      string `json:"timestamp"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Detail: detail})
}

// handlePublishLegacy implements POST /publish/{channel}: the channel
// comes from the URL, the body is the event object verbatim.
//
// Grounded on original_source/courier/broker.py's _handle_publish: the
// channel is auto-created, the body must be a JSON object, and the
// response always reports clients_reached even when it is zero.
func (s *Server) handlePublishLegacy(w http.ResponseWriter, r *http.Request) {
	channelName := r.PathValue("channel")

	data, ok := s.readEventBody(w, r)
	if !ok {
		return
	}

	s.publishAndRespond(w, channelName, data)
}

type publishRequest struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// handlePublish implements POST /publish: the preferred path, with the
// channel and payload both carried in the body.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be valid JSON")
		return
	}
	if req.Channel == "" {
		writeError(w, http.StatusBadRequest, "Missing 'channel' in request body")
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusBadRequest, "Missing 'data' in request body")
		return
	}
	if !isJSONObject(req.Data) {
		writeError(w, http.StatusBadRequest, "'data' must be a JSON object")
		return
	}

	s.publishAndRespond(w, req.Channel, req.Data)
}

// readEventBody decodes the legacy publish endpoint's body, which is the
// event itself (not wrapped in {"data": ...}).
func (s *Server) readEventBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be valid JSON")
		return nil, false
	}
	if !isJSONObject(raw) {
		writeError(w, http.StatusBadRequest, "Event must be a JSON object")
		return nil, false
	}
	return raw, true
}

func isJSONObject(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	_, ok := v.(map[string]any)
	return ok
}

// publishAndRespond validates the channel name, auto-creates the channel
// if needed, runs the broadcast, and writes the shared response shape.
func (s *Server) publishAndRespond(w http.ResponseWriter, channelName string, data json.RawMessage) {
	if _, err := channel.Validate(channelName); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.registry.EnsureChannel(channelName)
	s.reportChannelsCurrent()

	reached := s.broadcast.Broadcast(channelName, data)
	s.stats.RecordSent(channelName, reached)
	if s.collectors != nil {
		s.collectors.MessagesSentTotal.Add(float64(reached))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(publishResponse{
		Status:         "published",
		Channel:        channelName,
		ClientsReached: reached,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})
}
