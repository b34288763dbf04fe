package update

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/nerrad567/gray-logic-doorbell/internal/audit"
)

const (
	stagingDirPermissions = 0o750

	// healthCheckTimeout bounds each dependency probe in GET /health.
	healthCheckTimeout = 2 * time.Second
)

// handleHealth returns liveness plus a small status snapshot. Any failing
// check turns the response into 503 with status "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	code, status := http.StatusOK, "ok"
	checks := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			code, status = http.StatusServiceUnavailable, "degraded"
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]any{
		"status":         status,
		"checks":         checks,
		"version":        s.version,
		"hostname":       s.hostname,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"update_pending": s.staging.Load(),
	}
	if s.status != nil {
		body["device"] = s.status()
	}
	writeJSON(w, code, body)
}

// handleMetrics writes the doorbell metrics followed by Go process metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if s.metrics != nil {
		s.metrics.WritePrometheus(w)
	}
	metrics.WriteProcessMetrics(w)
}

// handleCommands returns the remote command history, newest first.
//
// Query parameters:
//   - command: filter by kind (stop, play, volume)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeJSON(w, http.StatusOK, &audit.ListResult{Entries: []audit.Entry{}})
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{Command: q.Get("command")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.commands.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing commands failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleUpload streams the request body to the staging path and queues the
// image for the main loop. Only one image may be pending at a time.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.staging.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, codeConflict, "an update is already pending")
		return
	}

	img, status, err := s.stage(w, r)
	if err != nil {
		s.staging.Store(false)
		s.logger.Warn("update upload failed", "error", err)
		code := codeBadRequest
		switch status {
		case http.StatusRequestEntityTooLarge:
			code = codeTooLarge
		case http.StatusInternalServerError:
			code = codeInternal
		}
		writeError(w, status, code, err.Error())
		return
	}

	// staging was false before, so the buffered slot is free.
	s.pending <- img

	s.logger.Info("update image staged", "size", img.Size, "sha256", img.SHA256)
	writeJSON(w, http.StatusAccepted, img)
}

// stage writes the body to a temporary file next to the staging path and
// renames it into place once complete and verified.
func (s *Server) stage(w http.ResponseWriter, r *http.Request) (Image, int, error) {
	body := io.Reader(r.Body)
	if s.cfg.MaxImageSize > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxImageSize)
	}

	dir := filepath.Dir(s.cfg.StagingPath)
	if err := os.MkdirAll(dir, stagingDirPermissions); err != nil {
		return Image{}, http.StatusInternalServerError, fmt.Errorf("creating staging directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.cfg.StagingPath)+".*.part")
	if err != nil {
		return Image{}, http.StatusInternalServerError, fmt.Errorf("creating staging file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // Gone after a successful rename

	hasher := sha256.New()
	size, copyErr := io.Copy(io.MultiWriter(tmp, hasher), body)
	closeErr := tmp.Close()

	if copyErr != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(copyErr, &tooLarge) {
			return Image{}, http.StatusRequestEntityTooLarge, fmt.Errorf("image exceeds %d bytes", tooLarge.Limit)
		}
		return Image{}, http.StatusBadRequest, fmt.Errorf("reading image: %w", copyErr)
	}
	if closeErr != nil {
		return Image{}, http.StatusInternalServerError, fmt.Errorf("writing image: %w", closeErr)
	}
	if size == 0 {
		return Image{}, http.StatusBadRequest, errors.New("empty image")
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if want := r.Header.Get(HeaderSHA256); want != "" && !strings.EqualFold(want, sum) {
		return Image{}, http.StatusBadRequest, fmt.Errorf("checksum mismatch: got %s", sum)
	}

	if err := os.Rename(tmpPath, s.cfg.StagingPath); err != nil {
		return Image{}, http.StatusInternalServerError, fmt.Errorf("staging image: %w", err)
	}

	return Image{
		Path:       s.cfg.StagingPath,
		Size:       size,
		SHA256:     sum,
		ReceivedAt: time.Now().UTC(),
	}, http.StatusAccepted, nil
}
