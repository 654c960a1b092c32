package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"image-compress-go/internal/collector"
	"image-compress-go/internal/compressor"
	"image-compress-go/internal/config"
	"image-compress-go/internal/extractor"
	"image-compress-go/internal/hasher"
	"image-compress-go/internal/logger"
	"image-compress-go/internal/runner"
	"image-compress-go/internal/statistics"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// maxUploadBytes bounds the JSON body of an upload batch.
const maxUploadBytes = 1 << 30

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex
	metadata   *extractor.EXIFExtractor

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	batchID        string
	cancel         context.CancelFunc
	currentStats   *statistics.Statistics
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// UploadedFile is one base64 encoded image of an upload batch.
type UploadedFile struct {
	Name        string `json:"name"`
	Data        string `json:"data"`
	Format      string `json:"format"`
	SourceIndex int    `json:"sourceIndex"`
	SourcePath  string `json:"sourcePath,omitempty"`
}

// CompressRequest is the body of POST /api/compress.
type CompressRequest struct {
	Files      []UploadedFile       `json:"files"`
	Settings   *compressor.Settings `json:"settings,omitempty"`
	OutputPath string               `json:"outputPath,omitempty"`
}

// CompressPathsRequest is the body of POST /api/compress/paths.
type CompressPathsRequest struct {
	Paths      []string `json:"paths"`
	OutputPath string   `json:"outputPath,omitempty"`
	DryRun     bool     `json:"dryRun"`
}

// PathRequest is the body of the single-path endpoints.
type PathRequest struct {
	Path string `json:"path"`
}

// PathInfo is the answer of POST /api/stat.
type PathInfo struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	IsDirectory  bool   `json:"isDirectory"`
	ModifiedTime string `json:"modifiedTime"`
	Checksum     string `json:"checksum,omitempty"`
}

// BatchResponse is the answer of a finished upload batch.
type BatchResponse struct {
	BatchID string              `json:"batchId"`
	Results []compressor.Result `json:"results"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
		metadata: extractor.NewEXIFExtractor(log),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/compress/paths", s.handleCompressPaths).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/stat", s.handleStat).Methods("POST")
	api.HandleFunc("/exif", s.handleExif).Methods("POST")
	api.HandleFunc("/statistics", s.handleGetStatistics).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop cancels the running batch and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.cancelBatch()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running, batchID, stats := s.isRunning, s.batchID, s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = stats.Snapshot()
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"batchId":    batchID,
			"statistics": statsData,
		},
	})
}

// handleCompress runs an upload batch and answers with its ordered results.
// Progress is pushed to WebSocket clients while the batch runs.
func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	settings := s.cfg.Settings()
	if req.Settings != nil {
		settings = *req.Settings
	}
	if req.OutputPath != "" {
		settings.OutputDirectory = req.OutputPath
	}
	if err := settings.Validate(); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	requests := make([]compressor.Request, len(req.Files))
	for i, f := range req.Files {
		requests[i] = compressor.Request{
			Name:          f.Name,
			Data:          decodePayload(f.Data),
			Format:        f.Format,
			SourcePath:    f.SourcePath,
			SequenceIndex: f.SourceIndex,
		}
	}

	batchID, ctx, stats, ok := s.startBatch(r.Context())
	if !ok {
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	defer s.finishBatch()

	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"batchId": batchID,
		"total":   len(requests),
	})

	comp := compressor.NewBatchCompressor(s.log, s.progressOptions(batchID))
	results, err := comp.Compress(ctx, requests, settings)
	if err != nil {
		s.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	for i, res := range results {
		stats.Record(res, requests[i].Format)
	}
	stats.Finalize()
	s.broadcastWSMessage("batch_completed", map[string]interface{}{
		"batchId":    batchID,
		"statistics": stats.Snapshot(),
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    BatchResponse{BatchID: batchID, Results: results},
	})
}

// handleCompressPaths starts a batch over files on the server's disk.
func (s *Server) handleCompressPaths(w http.ResponseWriter, r *http.Request) {
	var req CompressPathsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Paths) == 0 {
		s.writeError(w, "At least one path is required", http.StatusBadRequest)
		return
	}

	batchID, ctx, stats, ok := s.startBatch(context.Background())
	if !ok {
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}

	go s.runPathsAsync(ctx, batchID, stats, req)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Compression started",
		Data:    map[string]string{"batchId": batchID},
	})
}

func (s *Server) runPathsAsync(ctx context.Context, batchID string, stats *statistics.Statistics, req CompressPathsRequest) {
	defer s.finishBatch()

	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"batchId": batchID,
		"paths":   req.Paths,
		"dryRun":  req.DryRun,
	})

	cfg := *s.cfg
	if req.OutputPath != "" {
		cfg.Compression.OutputDirectory = req.OutputPath
	}
	cfg.Security.DryRun = req.DryRun

	log := logger.WithBatch(s.log, batchID)
	hook := func(level, message string) {
		s.broadcastWSMessage("log", map[string]string{"level": level, "message": message})
	}
	comp := compressor.NewBatchCompressor(s.log, s.progressOptions(batchID))
	coll := collector.NewCollector(s.log, cfg.Security.MaxFilesPerRun)
	run := runner.NewRunnerWithLogHook(&cfg, s.log, stats, coll, comp, hook)

	outcome, err := run.Run(ctx, req.Paths)
	if err != nil {
		log.Warnf("Batch finished with errors: %v", err)
		s.broadcastWSMessage("batch_error", map[string]interface{}{
			"batchId": batchID,
			"error":   err.Error(),
		})
		if outcome == nil || len(outcome.Files) == 0 {
			return
		}
	}

	s.broadcastWSMessage("batch_completed", map[string]interface{}{
		"batchId":    batchID,
		"statistics": stats.Snapshot(),
		"plans":      outcome.Plans,
	})
}

func (s *Server) progressOptions(batchID string) compressor.Options {
	opts := s.cfg.CompressorOptions()
	opts.OnItem = func(res compressor.Result, completed, total int) {
		s.broadcastWSMessage("item_completed", map[string]interface{}{
			"batchId":   batchID,
			"result":    res,
			"completed": completed,
			"total":     total,
		})
	}
	return opts
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.cancelBatch() {
		s.writeJSON(w, APIResponse{
			Success: true,
			Message: "No operation in progress",
		})
		return
	}

	s.broadcastWSMessage("operation_stopped", map[string]interface{}{
		"message": "Operation stopped by user",
	})
	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Operation stopped",
	})
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.writeError(w, "Path is required", http.StatusBadRequest)
		return
	}

	info, err := os.Stat(req.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.writeError(w, "Path does not exist", http.StatusNotFound)
			return
		}
		s.writeError(w, fmt.Sprintf("Failed to stat path: %v", err), http.StatusInternalServerError)
		return
	}

	result := PathInfo{
		Path:         req.Path,
		Size:         info.Size(),
		IsDirectory:  info.IsDir(),
		ModifiedTime: info.ModTime().Format(time.RFC3339),
	}
	if !info.IsDir() {
		if sum, err := hasher.FileHash(req.Path, hasher.ChecksumLen); err == nil {
			result.Checksum = sum
		}
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    result,
	})
}

func (s *Server) handleExif(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.writeError(w, "Path is required", http.StatusBadRequest)
		return
	}

	md, err := s.metadata.Extract(req.Path)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, compressor.ErrUnsupportedFormat):
			status = http.StatusBadRequest
		case errors.Is(err, os.ErrNotExist):
			status = http.StatusNotFound
		}
		s.writeError(w, err.Error(), status)
		return
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    md,
	})
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	stats := s.currentStats
	s.operationMutex.RUnlock()

	data := map[string]interface{}{
		"metadataCache": s.metadata.GetCacheStats(),
	}
	if stats != nil {
		data["summary"] = stats.GetSummary()
		data["files"] = stats.Snapshot()
		data["fileTypes"] = stats.GetFileTypeBreakdown()
		data["errors"] = stats.GetErrorSummary()
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    data,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// startBatch claims the single batch slot.
func (s *Server) startBatch(parent context.Context) (string, context.Context, *statistics.Statistics, bool) {
	s.operationMutex.Lock()
	defer s.operationMutex.Unlock()

	if s.isRunning {
		return "", nil, nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	s.isRunning = true
	s.batchID = uuid.NewString()
	s.cancel = cancel
	s.currentStats = statistics.NewStatistics()

	logger.WithBatch(s.log, s.batchID).Info("Batch started")
	return s.batchID, ctx, s.currentStats, true
}

func (s *Server) finishBatch() {
	s.operationMutex.Lock()
	defer s.operationMutex.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.isRunning = false
	logger.WithBatch(s.log, s.batchID).Info("Batch finished")
}

// cancelBatch reports whether a running batch was cancelled.
func (s *Server) cancelBatch() bool {
	s.operationMutex.RLock()
	defer s.operationMutex.RUnlock()

	if !s.isRunning || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// A connection supports one writer at a time.
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}

// decodePayload decodes a base64 image, optionally wrapped in a data URL.
// Undecodable payloads yield nil so the item fails as a decode error.
func decodePayload(payload string) []byte {
	if strings.HasPrefix(payload, "data:") {
		if comma := strings.IndexByte(payload, ','); comma >= 0 {
			payload = payload[comma+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil
	}
	return data
}
