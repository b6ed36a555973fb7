package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"Bt1Deck/config"
	"Bt1Deck/core/analysis"
	"Bt1Deck/core/audio"
	"Bt1Deck/core/playlist"
	"Bt1Deck/core/utils"
	"Bt1Deck/logger"
	"Bt1Deck/model"
)

const (
	maxUploadMemory = 32 << 20 // 32MB
	maxCoverSize    = 10 << 20 // 10MB
)

// Transport is the playback control the API exposes besides the store.
type Transport interface {
	Position() (pos, dur time.Duration)
	Volume() float64
	SetVolume(v float64)
	SeekFraction(f float64) error
	Playing() bool
}

// APIHandler serves the deck's HTTP API.
type APIHandler struct {
	store     *playlist.Store
	transport Transport
	renamer   *analysis.Renamer
	hub       *Hub
	cfg       *config.Config

	// background work (rename batches) runs under baseCtx
	baseCtx  context.Context
	renameWG sync.WaitGroup

	upgrader websocket.Upgrader
}

func NewAPIHandler(
	ctx context.Context,
	store *playlist.Store,
	transport Transport,
	renamer *analysis.Renamer,
	hub *Hub,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		store:     store,
		transport: transport,
		renamer:   renamer,
		hub:       hub,
		cfg:       cfg,
		baseCtx:   ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Wait blocks until background rename batches have finished.
func (h *APIHandler) Wait() {
	h.renameWG.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("write response failed", logger.ErrorField(err))
	}
}

func (h *APIHandler) writeSnapshot(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
}

// indexVar reads the {index} route variable. The route pattern guarantees digits.
func indexVar(r *http.Request) int {
	i, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return model.NoTrack
	}
	return i
}

// GetPlaylistHandler GET /api/playlist
func (h *APIHandler) GetPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	h.writeSnapshot(w)
}

func (h *APIHandler) positionData() PositionData {
	pos, dur := h.transport.Position()
	data := PositionData{
		Position:     pos.Seconds(),
		Duration:     dur.Seconds(),
		PositionText: audio.FormatTime(pos.Seconds()),
		DurationText: audio.FormatTime(dur.Seconds()),
		Playing:      h.transport.Playing(),
		Volume:       h.transport.Volume(),
	}
	if cur, ok := h.store.Snapshot().Current(); ok {
		data.Title = cur.DisplayName
	}
	return data
}

// GetTransportHandler GET /api/transport
func (h *APIHandler) GetTransportHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.positionData())
}

// saveUpload stores an uploaded audio part under a generated name and wraps
// it in a source that deletes the file on release.
func (h *APIHandler) saveUpload(file multipart.File, header *multipart.FileHeader) (*audio.FileSource, error) {
	ext := filepath.Ext(header.Filename)
	dest := filepath.Join(h.cfg.UploadDir, uuid.New().String()+ext)
	if err := saveUploadedFile(file, dest); err != nil {
		return nil, err
	}
	return audio.NewTempFileSource(dest, filepath.Base(header.Filename)), nil
}

func saveUploadedFile(file io.Reader, destPath string) error {
	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", destPath, err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, file); err != nil {
		destFile.Close()
		os.Remove(destPath)
		return fmt.Errorf("failed to copy uploaded file to %s: %w", destPath, err)
	}
	return nil
}

func isAudioPart(header *multipart.FileHeader) bool {
	if utils.IsAudioFile(header.Filename) {
		return true
	}
	return strings.HasPrefix(header.Header.Get("Content-Type"), "audio/")
}

func isImagePart(header *multipart.FileHeader) bool {
	if utils.IsImageType(header.Header.Get("Content-Type")) {
		return true
	}
	return utils.IsImageType(utils.MIMETypeOf(header.Filename))
}

func (h *APIHandler) addAudioPart(ctx context.Context, header *multipart.FileHeader) error {
	file, err := header.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	src, err := h.saveUpload(file, header)
	if err != nil {
		return err
	}
	h.store.AddTrack(ctx, src)
	return nil
}

// AddTracksHandler POST /api/tracks, multipart field "files"
func (h *APIHandler) AddTracksHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse multipart form: %v", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		http.Error(w, "Missing 'files' in form", http.StatusBadRequest)
		return
	}

	added := 0
	for _, header := range headers {
		if !isAudioPart(header) {
			logger.Debug("skip non-audio upload", logger.String("file", header.Filename))
			continue
		}
		if err := h.addAudioPart(r.Context(), header); err != nil {
			logger.Error("保存上传文件失败", logger.String("file", header.Filename), logger.ErrorField(err))
			continue
		}
		added++
	}
	logger.Info("tracks uploaded", logger.Int("files", len(headers)), logger.Int("added", added))
	h.writeSnapshot(w)
}

// UploadHandler POST /api/upload with a single "file": an image becomes the
// cover of the last track, audio is appended.
func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse multipart form: %v", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing 'file' in form", http.StatusBadRequest)
		return
	}
	defer file.Close()

	switch {
	case isImagePart(header):
		c, err := readCover(file, header)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.store.SetCoverOfLast(c)
	case isAudioPart(header):
		src, err := h.saveUpload(file, header)
		if err != nil {
			logger.Error("保存上传文件失败", logger.String("file", header.Filename), logger.ErrorField(err))
			http.Error(w, "Failed to save upload", http.StatusInternalServerError)
			return
		}
		h.store.AddTrack(r.Context(), src)
	default:
		logger.Debug("ignored upload", logger.String("file", header.Filename))
	}
	h.writeSnapshot(w)
}

func readCover(file multipart.File, header *multipart.FileHeader) (*model.Cover, error) {
	if header.Size > maxCoverSize {
		return nil, fmt.Errorf("cover too large: %d bytes", header.Size)
	}
	data, err := io.ReadAll(io.LimitReader(file, maxCoverSize+1))
	if err != nil {
		return nil, fmt.Errorf("read cover: %w", err)
	}
	if len(data) > maxCoverSize {
		return nil, fmt.Errorf("cover too large")
	}
	mimeType := header.Header.Get("Content-Type")
	if !utils.IsImageType(mimeType) {
		mimeType = utils.MIMETypeOf(header.Filename)
	}
	return &model.Cover{Data: data, MIMEType: mimeType}, nil
}

// RemoveTrackHandler DELETE /api/tracks/{index}
func (h *APIHandler) RemoveTrackHandler(w http.ResponseWriter, r *http.Request) {
	h.store.RemoveTrack(indexVar(r))
	h.writeSnapshot(w)
}

// RenameRequest is the body of PUT /api/tracks/{index}/name.
type RenameRequest struct {
	Name string `json:"name"`
}

// RenameTrackHandler PUT /api/tracks/{index}/name
func (h *APIHandler) RenameTrackHandler(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.store.Rename(indexVar(r), req.Name)
	h.writeSnapshot(w)
}

// ResetNameHandler DELETE /api/tracks/{index}/name
func (h *APIHandler) ResetNameHandler(w http.ResponseWriter, r *http.Request) {
	h.store.ResetName(indexVar(r))
	h.writeSnapshot(w)
}

// ResetAllNamesHandler POST /api/names/reset
func (h *APIHandler) ResetAllNamesHandler(w http.ResponseWriter, r *http.Request) {
	h.store.ResetAllNames()
	h.writeSnapshot(w)
}

// SetCoverHandler PUT /api/tracks/{index}/cover, multipart field "cover"
func (h *APIHandler) SetCoverHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxCoverSize); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("cover")
	if err != nil {
		http.Error(w, "Missing 'cover' in form", http.StatusBadRequest)
		return
	}
	defer file.Close()

	c, err := readCover(file, header)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.store.SetCover(indexVar(r), c)
	h.writeSnapshot(w)
}

// CoverHandler GET /api/tracks/{id}/cover
func (h *APIHandler) CoverHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := h.store.TrackByID(mux.Vars(r)["id"])
	if !ok || t.Cover == nil || len(t.Cover.Data) == 0 {
		http.Error(w, "Cover not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", t.Cover.MIMEType)
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(t.Cover.Data); err != nil {
		logger.Warn("write cover failed", logger.ErrorField(err))
	}
}

// SortRequest is the body of POST /api/sort.
type SortRequest struct {
	Mode model.SortMode `json:"mode"`
}

// SortHandler POST /api/sort
func (h *APIHandler) SortHandler(w http.ResponseWriter, r *http.Request) {
	var req SortRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.store.Sort(req.Mode)
	h.writeSnapshot(w)
}

// PlayHandler POST /api/play/{index}
func (h *APIHandler) PlayHandler(w http.ResponseWriter, r *http.Request) {
	h.store.SelectAndPlay(indexVar(r))
	h.writeSnapshot(w)
}

// ToggleHandler POST /api/toggle
func (h *APIHandler) ToggleHandler(w http.ResponseWriter, r *http.Request) {
	h.store.TogglePlay()
	h.writeSnapshot(w)
}

// NextHandler POST /api/next
func (h *APIHandler) NextHandler(w http.ResponseWriter, r *http.Request) {
	h.store.Advance(model.Next)
	h.writeSnapshot(w)
}

// PrevHandler POST /api/prev
func (h *APIHandler) PrevHandler(w http.ResponseWriter, r *http.Request) {
	h.store.Advance(model.Previous)
	h.writeSnapshot(w)
}

// ShuffleHandler POST /api/shuffle
func (h *APIHandler) ShuffleHandler(w http.ResponseWriter, r *http.Request) {
	h.store.ToggleShuffle()
	h.writeSnapshot(w)
}

// SeekRequest is the body of POST /api/seek; Percent is 0..100.
type SeekRequest struct {
	Percent float64 `json:"percent"`
}

// SeekHandler POST /api/seek
func (h *APIHandler) SeekHandler(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.transport.SeekFraction(req.Percent / 100); err != nil {
		logger.Debug("seek ignored", logger.ErrorField(err))
	}
	writeJSON(w, http.StatusOK, h.positionData())
}

// VolumeRequest is the body of POST /api/volume.
type VolumeRequest struct {
	Volume float64 `json:"volume"`
}

// VolumeHandler POST /api/volume
func (h *APIHandler) VolumeHandler(w http.ResponseWriter, r *http.Request) {
	var req VolumeRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.transport.SetVolume(req.Volume)
	writeJSON(w, http.StatusOK, h.positionData())
}

// RenameAllHandler POST /api/rename starts a background auto-rename batch.
func (h *APIHandler) RenameAllHandler(w http.ResponseWriter, r *http.Request) {
	if !h.store.SetRenaming(true) {
		http.Error(w, "Rename already running", http.StatusConflict)
		return
	}
	h.renameWG.Add(1)
	go func() {
		defer h.renameWG.Done()
		defer h.store.SetRenaming(false)
		h.renamer.RenameAll(h.baseCtx, h.store)
	}()
	writeJSON(w, http.StatusAccepted, h.store.Snapshot())
}

// WebSocketHandler GET /ws
func (h *APIHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	client := &Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
	}
	if !h.attach(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(h.baseCtx, h.HandleMessage)

	logger.Info("WebSocket 连接建立", logger.String("remote", r.RemoteAddr))
}

// attach registers client for broadcasts and then sends it the current
// playlist. A change published in between arrives twice at worst.
func (h *APIHandler) attach(client *Client) bool {
	if !h.hub.Register(client) {
		return false
	}
	if data, err := json.Marshal(h.store.Snapshot()); err == nil {
		client.SendMessage(&WSMessage{Type: MsgTypePlaylist, Data: data})
	}
	return true
}

// HandleMessage applies a control message sent over the websocket.
func (h *APIHandler) HandleMessage(ctx context.Context, client *Client, msg *WSMessage) {
	switch msg.Type {
	case MsgTypeToggle:
		h.store.TogglePlay()
	case MsgTypeNext:
		h.store.Advance(model.Next)
	case MsgTypePrev:
		h.store.Advance(model.Previous)
	case MsgTypeShuffle:
		h.store.ToggleShuffle()
	default:
		logger.Debug("unknown ws message", logger.String("type", string(msg.Type)))
	}
}

// ReportPosition broadcasts the playback position every interval while
// something is playing.
func (h *APIHandler) ReportPosition(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.transport.Playing() || h.hub.ClientCount() == 0 {
				continue
			}
			data, err := json.Marshal(h.positionData())
			if err != nil {
				continue
			}
			h.hub.Broadcast(&WSMessage{Type: MsgTypePosition, Data: data})
		}
	}
}
