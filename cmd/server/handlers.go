package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/echosig/echosig/pkg/echosig/echosigerr"
	"github.com/echosig/echosig/pkg/echosig/engine"
	"github.com/echosig/echosig/pkg/echosig/matcher"
	"github.com/echosig/echosig/pkg/logger"
	"github.com/echosig/echosig/pkg/utils"
)

// Server encapsulates the HTTP server and its dependencies, grounded on the
// teacher's Server but wrapping the new engine.Engine facade in place of
// acousticdna.Service.
type Server struct {
	engine *engine.Engine
	config *ServerConfig
	log    *logger.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port              int
	TempDir           string
	SampleRate        int
	WorkerCount       int
	AllowedOrigins    []string
	databaseTypeLabel string
}

// NewServer creates a new server instance.
func NewServer(e *engine.Engine, config *ServerConfig) *Server {
	return &Server{
		engine: e,
		config: config,
		log:    logger.GetLogger(),
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("encoding json response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "echosig API",
		"endpoints": map[string]string{
			"health":     "GET /health",
			"metrics":    "GET /api/health/metrics",
			"songs":      "GET /api/songs",
			"addSong":    "POST /api/songs",
			"getSong":    "GET /api/songs/{id}",
			"deleteSong": "DELETE /api/songs/{id}",
			"match":      "POST /api/match",
		},
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	songs, err := s.engine.List()
	if err != nil {
		s.log.Errorf("listing songs for metrics: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to retrieve metrics")
		return
	}

	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:       "healthy",
		DatabaseType: s.config.databaseTypeLabel,
		SongCount:    len(songs),
		SampleRate:   s.config.SampleRate,
		WorkerCount:  s.config.WorkerCount,
	})
}

// handleListSongs handles GET /api/songs.
func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.engine.List()
	if err != nil {
		s.log.Errorf("listing songs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to retrieve songs")
		return
	}

	dtos := make([]SongDTO, len(songs))
	for i, song := range songs {
		dtos[i] = SongDTO{
			ID:            song.ID,
			Name:          song.Name,
			ContentHash:   hashHex(song.ContentHash[:]),
			Fingerprinted: song.Fingerprinted,
		}
	}
	s.respondJSON(w, http.StatusOK, ListSongsResponse{Songs: dtos, Count: len(dtos)})
}

// handleGetSong handles GET /api/songs/{id}. The index has no direct
// by-id-and-not-deleted lookup beyond List, so this walks the fingerprinted
// set once; the song count a deployment carries keeps this cheap.
func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request, songID uint32) {
	songs, err := s.engine.List()
	if err != nil {
		s.log.Errorf("listing songs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to retrieve song")
		return
	}
	for _, song := range songs {
		if song.ID == songID {
			s.respondJSON(w, http.StatusOK, SongDTO{
				ID:            song.ID,
				Name:          song.Name,
				ContentHash:   hashHex(song.ContentHash[:]),
				Fingerprinted: song.Fingerprinted,
			})
			return
		}
	}
	s.respondError(w, http.StatusNotFound, fmt.Sprintf("song %d not found", songID))
}

// handleDeleteSong handles DELETE /api/songs/{id}.
func (s *Server) handleDeleteSong(w http.ResponseWriter, r *http.Request, songID uint32) {
	if err := s.engine.Delete(songID); err != nil {
		s.log.Errorf("deleting song %d: %v", songID, err)
		s.respondError(w, http.StatusInternalServerError, "failed to delete song")
		return
	}
	s.log.Infof("deleted song %d", songID)
	s.respondJSON(w, http.StatusOK, DeleteSongResponse{Message: "song deleted", ID: songID})
}

// handleAddSong handles POST /api/songs (multipart file upload).
func (s *Server) handleAddSong(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(100 << 20); err != nil {
		s.log.Errorf("parsing multipart form: %v", err)
		s.respondError(w, http.StatusBadRequest, "failed to parse form data")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.log.Errorf("reading audio field: %v", err)
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	tempFile := filepath.Join(s.config.TempDir, fmt.Sprintf("upload-%d-%s", time.Now().UnixNano(), header.Filename))
	out, err := os.Create(tempFile)
	if err != nil {
		s.log.Errorf("creating temp file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to process upload")
		return
	}
	defer utils.DeleteFile(tempFile)

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		s.log.Errorf("saving upload: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to save uploaded file")
		return
	}
	out.Close()

	result, err := s.engine.AddSong(ctx, tempFile)
	if err != nil {
		s.log.Errorf("ingesting %s: %v", header.Filename, err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to add song: %v", err))
		return
	}

	s.log.Infof("ingested %s as song %d (skipped=%v)", header.Filename, result.SongID, result.Skipped)
	s.respondJSON(w, http.StatusCreated, AddSongResponse{
		Message:   "song added",
		ID:        result.SongID,
		Name:      filepath.Base(tempFile),
		Skipped:   result.Skipped,
		Landmarks: result.LandmarkN,
	})
}

// handleMatchFile handles POST /api/match (multipart file upload).
func (s *Server) handleMatchFile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(50 << 20); err != nil {
		s.log.Errorf("parsing multipart form: %v", err)
		s.respondError(w, http.StatusBadRequest, "failed to parse form data")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.log.Errorf("reading audio field: %v", err)
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	tempFile := filepath.Join(s.config.TempDir, fmt.Sprintf("query-%d-%s", time.Now().UnixNano(), header.Filename))
	out, err := os.Create(tempFile)
	if err != nil {
		s.log.Errorf("creating temp file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to process upload")
		return
	}
	defer utils.DeleteFile(tempFile)

	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		s.log.Errorf("saving upload: %v", err)
		s.respondError(w, http.StatusInternalServerError, "failed to save uploaded file")
		return
	}
	out.Close()

	result, err := s.engine.Recognize(ctx, tempFile)
	if err != nil {
		if isNoMatch(err) {
			s.respondJSON(w, http.StatusOK, MatchResponse{Matched: false})
			return
		}
		s.log.Errorf("matching %s: %v", header.Filename, err)
		s.respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to match: %v", err))
		return
	}

	s.respondJSON(w, http.StatusOK, MatchResponse{
		Matched:       true,
		SongID:        result.SongID,
		SongName:      result.SongName,
		Confidence:    result.Confidence,
		OffsetSeconds: result.OffsetSeconds,
	})
}

func isNoMatch(err error) bool {
	return errors.Is(err, echosigerr.ErrNoRecording) || errors.Is(err, matcher.ErrNoMatch)
}

// handleSongs routes requests to /api/songs.
func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListSongs(w, r)
	case http.MethodPost:
		s.handleAddSong(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSong routes requests to /api/songs/{id}.
func (s *Server) handleSong(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Path[len("/api/songs/"):]
	if idStr == "" {
		s.respondError(w, http.StatusBadRequest, "song id required")
		return
	}
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid song id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetSong(w, r, uint32(id))
	case http.MethodDelete:
		s.handleDeleteSong(w, r, uint32(id))
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleMatch routes requests to /api/match.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.handleMatchFile(w, r)
}
