package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/osa030/groovebox/internal/app/playback"
)

// LoopRequest is the body of POST /api/guilds/{guild}/loop.
type LoopRequest struct {
	Enabled bool `json:"enabled"`
}

// VolumeRequest is the body of POST /api/guilds/{guild}/volume.
// Percent is clamped to 0..100.
type VolumeRequest struct {
	Percent *float64 `json:"percent"`
}

func (s *Server) listGuilds(w http.ResponseWriter, r *http.Request) {
	ids := s.player.GuildIDs()
	out := make([]playback.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.player.Snapshot(r.Context(), id)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		out = append(out, snap)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) guildState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.player.Snapshot(r.Context(), r.PathValue("guild"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// respond replies with message and the guild's snapshot after a successful command.
func (s *Server) respond(ctx context.Context, w http.ResponseWriter, guildID, message string) {
	resp := ActionResponse{Message: message}
	if snap, err := s.player.Snapshot(ctx, guildID); err == nil {
		resp.Snapshot = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("guild")
	if err := s.player.Pause(r.Context(), guildID); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.respond(r.Context(), w, guildID, "Paused")
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("guild")
	if err := s.player.Resume(r.Context(), guildID); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.respond(r.Context(), w, guildID, "Resumed")
}

func (s *Server) skip(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("guild")
	skipped, err := s.player.Skip(r.Context(), guildID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.respond(r.Context(), w, guildID, fmt.Sprintf("Skipped **%s**", skipped.Track.Title))
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("guild")
	// The voice connection stays; leaving the channel is a chat command.
	if err := s.player.Stop(r.Context(), guildID, false); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.respond(r.Context(), w, guildID, "Stopped and cleared the queue")
}

func (s *Server) shuffle(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("guild")
	if err := s.player.Shuffle(r.Context(), guildID); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.respond(r.Context(), w, guildID, "Shuffled the queue")
}

func (s *Server) loop(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("guild")
	var req LoopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "body must be {\"enabled\": bool}")
		return
	}
	if err := s.player.SetLoop(r.Context(), guildID, req.Enabled); err != nil {
		s.writeFailure(w, err)
		return
	}
	msg := "Looping disabled"
	if req.Enabled {
		msg = "Looping enabled"
	}
	s.respond(r.Context(), w, guildID, msg)
}

func (s *Server) volume(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("guild")
	var req VolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Percent == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "body must be {\"percent\": number}")
		return
	}
	applied, err := s.player.SetVolume(r.Context(), guildID, playback.VolumeFromPercent(*req.Percent))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.respond(r.Context(), w, guildID, fmt.Sprintf("Volume set to %.0f%%", applied*100))
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("guild")
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "queue id must be an integer")
		return
	}
	removed, err := s.player.Remove(r.Context(), guildID, id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("No queued track with id %d", id))
		return
	}
	s.respond(r.Context(), w, guildID, fmt.Sprintf("Removed track %d", id))
}
