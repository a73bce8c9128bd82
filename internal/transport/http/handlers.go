package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/termicomm/internal/gateway"
)

// StateHandlers serves snapshots of gateway state.
type StateHandlers struct {
	deps Deps
	log  *zerolog.Logger
}

// NewStateHandlers creates the handlers over deps.
func NewStateHandlers(deps Deps, logger *zerolog.Logger) *StateHandlers {
	return &StateHandlers{deps: deps, log: logger}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PresenceResponse lists online users.
type PresenceResponse struct {
	Online []string `json:"online"`
	Count  int      `json:"count"`
}

// VoiceResponse lists voice members and relay endpoints.
type VoiceResponse struct {
	Members   []string `json:"members"`
	Endpoints []string `json:"endpoints"`
}

// BlobsResponse lists stored attachments.
type BlobsResponse struct {
	Files []string `json:"files"`
}

// Guilds returns the guild tree in the same shape as the op 9 snapshot.
// GET /api/v1/guilds
func (h *StateHandlers) Guilds(c *gin.Context) {
	guilds, err := h.deps.Guilds.ListGuildsWithChannels(c.Request.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("list guilds")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "store unavailable"})
		return
	}

	c.JSON(http.StatusOK, gateway.Tree(guilds))
}

// Presence returns the online users in registration order.
// GET /api/v1/presence
func (h *StateHandlers) Presence(c *gin.Context) {
	names := h.deps.Presence.Names()
	c.JSON(http.StatusOK, PresenceResponse{Online: names, Count: len(names)})
}

// Voice returns voice members and the relay's UDP endpoints.
// GET /api/v1/voice
func (h *StateHandlers) Voice(c *gin.Context) {
	resp := VoiceResponse{Members: h.deps.Presence.VoiceNames(), Endpoints: []string{}}
	if h.deps.Voice != nil {
		resp.Endpoints = h.deps.Voice.Participants()
	}
	c.JSON(http.StatusOK, resp)
}

// Blobs returns the stored attachment names.
// GET /api/v1/blobs
func (h *StateHandlers) Blobs(c *gin.Context) {
	names, err := h.deps.Blobs.List()
	if err != nil {
		h.log.Warn().Err(err).Msg("list blobs")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "blob storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, BlobsResponse{Files: names})
}
