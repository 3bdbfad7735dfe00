package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"laughtrackr/internal/domain"
	"laughtrackr/internal/logging"
)

// DefaultMaxUploadBytes matches the client-side upload limit.
const DefaultMaxUploadBytes int64 = 500 << 20

// DefaultStepDelay paces the simulated analysis progress.
const DefaultStepDelay = 300 * time.Millisecond

// Options configures the development analysis server.
type Options struct {
	MaxUploadBytes int64
	StepDelay      time.Duration
	// Dir keeps uploaded files when set; otherwise bodies are counted and discarded.
	Dir      string
	Detector Detector
	Logger   *slog.Logger
}

type jobRecord struct {
	upload   Upload
	status   domain.AnalysisStatus
	progress float64
	message  string
	result   *Analysis
}

// Server is an in-memory implementation of the analysis HTTP API.
type Server struct {
	opts   Options
	logger *slog.Logger
	router *mux.Router

	mu   sync.Mutex
	jobs map[string]*jobRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a server; call Close to stop background analyses.
func New(opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.StepDelay < 0 {
		opts.StepDelay = 0
	}
	if opts.Detector == nil {
		opts.Detector = CadenceDetector{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:   opts,
		logger: logging.OrDefault(opts.Logger),
		jobs:   make(map[string]*jobRecord),
		ctx:    ctx,
		cancel: cancel,
	}

	r := mux.NewRouter()
	r.Use(allowAnyOrigin)
	s.RegisterRoutes(r)
	s.router = r
	return s
}

// RegisterRoutes wires the three analysis endpoints on r.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/upload", s.Upload).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/status/{id}", s.Status).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/result/{id}", s.Result).Methods(http.MethodGet, http.MethodOptions)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close cancels running analyses and waits for them to stop.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Upload accepts a multipart "file" field and schedules its analysis.
func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	reader, err := r.MultipartReader()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected multipart form"})
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file field"})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		s.store(w, part)
		return
	}
}

func (s *Server) store(w http.ResponseWriter, part *multipart.Part) {
	defer part.Close()
	name := "upload"
	if part.FileName() != "" {
		name = filepath.Base(part.FileName())
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	upload := Upload{ID: id, Name: name}

	var dst io.Writer = io.Discard
	var file *os.File
	if s.opts.Dir != "" {
		f, err := os.Create(filepath.Join(s.opts.Dir, id+"_"+name))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cannot store upload"})
			return
		}
		file = f
		dst = f
		upload.Path = f.Name()
	}

	n, err := io.Copy(dst, io.LimitReader(part, s.opts.MaxUploadBytes+1))
	if file != nil {
		_ = file.Close()
	}
	if err != nil || n > s.opts.MaxUploadBytes {
		if upload.Path != "" {
			_ = os.Remove(upload.Path)
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "upload interrupted"})
			return
		}
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("File exceeds %d MB.", s.opts.MaxUploadBytes>>20),
		})
		return
	}
	upload.Size = n

	s.mu.Lock()
	s.jobs[id] = &jobRecord{upload: upload, status: domain.AnalysisQueued, message: "Queued"}
	s.mu.Unlock()
	s.logger.Info("upload accepted", "file_id", id, "file", name, "bytes", n)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.analyze(upload)
	}()

	writeJSON(w, http.StatusOK, map[string]string{"fileId": id})
}

func (s *Server) analyze(upload Upload) {
	if !s.pause() {
		return
	}
	s.update(upload.ID, func(rec *jobRecord) {
		rec.status = domain.AnalysisProcessing
		rec.progress = 0
		rec.message = "Analyzing audio"
	})

	analysis, err := s.opts.Detector.Detect(s.ctx, upload)
	if err != nil {
		s.logger.Warn("analysis failed", "file_id", upload.ID, "error", err)
		s.update(upload.ID, func(rec *jobRecord) {
			rec.status = domain.AnalysisError
			rec.progress = 0
			rec.message = err.Error()
		})
		return
	}

	total := len(analysis.Segments)
	if total == 0 {
		total = 1
	}
	for i := range analysis.Segments {
		if !s.pause() {
			return
		}
		s.update(upload.ID, func(rec *jobRecord) {
			rec.progress = float64(i+1) / float64(total)
			rec.message = fmt.Sprintf("Computing segment %d/%d", i+1, total)
		})
	}

	s.update(upload.ID, func(rec *jobRecord) {
		rec.status = domain.AnalysisDone
		rec.progress = 1
		rec.message = "Complete"
		rec.result = &analysis
	})
	s.logger.Info("analysis complete", "file_id", upload.ID, "segments", len(analysis.Segments))
}

// pause waits one step; false means the server is closing.
func (s *Server) pause() bool {
	if s.opts.StepDelay == 0 {
		return s.ctx.Err() == nil
	}
	timer := time.NewTimer(s.opts.StepDelay)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Server) update(id string, fn func(*jobRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[id]; ok {
		fn(rec)
	}
}

type statusResponse struct {
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Status reports the analysis state of one upload.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	rec, ok := s.jobs[id]
	var resp statusResponse
	if ok {
		progress := rec.progress
		resp = statusResponse{Status: string(rec.status), Progress: &progress, Message: rec.message}
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusOK, statusResponse{Status: "unknown", Message: "No such job"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type resultSegment struct {
	domain.Segment
	Keywords []string `json:"keywords"`
}

type resultResponse struct {
	FileID      string          `json:"fileId"`
	Filename    string          `json:"filename"`
	DurationSec float64         `json:"durationSec"`
	Segments    []resultSegment `json:"segments"`
}

// Result returns the segments of a finished analysis, 404 until then.
func (s *Server) Result(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	rec, ok := s.jobs[id]
	var analysis *Analysis
	var upload Upload
	if ok {
		analysis = rec.result
		upload = rec.upload
	}
	s.mu.Unlock()

	if analysis == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not ready"})
		return
	}

	segments := make([]resultSegment, 0, len(analysis.Segments))
	for _, seg := range analysis.Segments {
		segments = append(segments, resultSegment{Segment: seg, Keywords: []string{}})
	}
	writeJSON(w, http.StatusOK, resultResponse{
		FileID:      id,
		Filename:    upload.ID + "_" + upload.Name,
		DurationSec: analysis.DurationSec,
		Segments:    segments,
	})
}

func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
