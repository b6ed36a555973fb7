package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gorilla/mux"

	"Bt1Deck/config"
	"Bt1Deck/core/analysis"
	"Bt1Deck/core/audio"
	"Bt1Deck/core/cover"
	"Bt1Deck/core/playlist"
	"Bt1Deck/core/watcher"
	"Bt1Deck/logger"
	"Bt1Deck/model"
)

const outputRate = beep.SampleRate(44100)

// corsMiddleware 添加 CORS 头
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter 注册所有 API 路由
func NewRouter(h *APIHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	api := router.PathPrefix("/api").Subrouter()

	// 歌单
	api.HandleFunc("/playlist", h.GetPlaylistHandler).Methods(http.MethodGet)
	api.HandleFunc("/tracks", h.AddTracksHandler).Methods(http.MethodPost)
	api.HandleFunc("/upload", h.UploadHandler).Methods(http.MethodPost)
	api.HandleFunc("/tracks/{index:[0-9]+}", h.RemoveTrackHandler).Methods(http.MethodDelete)
	api.HandleFunc("/tracks/{index:[0-9]+}/name", h.RenameTrackHandler).Methods(http.MethodPut)
	api.HandleFunc("/tracks/{index:[0-9]+}/name", h.ResetNameHandler).Methods(http.MethodDelete)
	api.HandleFunc("/tracks/{index:[0-9]+}/cover", h.SetCoverHandler).Methods(http.MethodPut)
	api.HandleFunc("/tracks/{id}/cover", h.CoverHandler).Methods(http.MethodGet)
	api.HandleFunc("/names/reset", h.ResetAllNamesHandler).Methods(http.MethodPost)
	api.HandleFunc("/sort", h.SortHandler).Methods(http.MethodPost)
	api.HandleFunc("/rename", h.RenameAllHandler).Methods(http.MethodPost)

	// 播放控制
	api.HandleFunc("/transport", h.GetTransportHandler).Methods(http.MethodGet)
	api.HandleFunc("/play/{index:[0-9]+}", h.PlayHandler).Methods(http.MethodPost)
	api.HandleFunc("/toggle", h.ToggleHandler).Methods(http.MethodPost)
	api.HandleFunc("/next", h.NextHandler).Methods(http.MethodPost)
	api.HandleFunc("/prev", h.PrevHandler).Methods(http.MethodPost)
	api.HandleFunc("/shuffle", h.ShuffleHandler).Methods(http.MethodPost)
	api.HandleFunc("/seek", h.SeekHandler).Methods(http.MethodPost)
	api.HandleFunc("/volume", h.VolumeHandler).Methods(http.MethodPost)

	router.HandleFunc("/ws", h.WebSocketHandler)

	// 预检请求只需经过 CORS 中间件
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	return router
}

// newSink opens the configured audio output, falling back to a headless sink.
func newSink(ctx context.Context, output string) (audio.Sink, func()) {
	if output == "speaker" {
		s, err := audio.NewSpeakerSink(outputRate, 100*time.Millisecond)
		if err == nil {
			return s, s.Close
		}
		logger.Warn("音频设备不可用，使用静音输出", logger.ErrorField(err))
	}
	s := audio.NewNullSink(outputRate)
	go s.Run(ctx)
	return s, func() {}
}

// Start wires the deck together and serves the API until SIGINT/SIGTERM.
// libraryDir overrides cfg.WatchDir when set.
func Start(cfg *config.Config, libraryDir string) error {
	if libraryDir == "" {
		libraryDir = cfg.WatchDir
	}
	if err := ensureDirExists(cfg.UploadDir); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	decoder := audio.ChainDecoder{audio.NewBeepDecoder(), audio.NewFFmpegDecoder(cfg.FFmpegPath)}
	sink, closeSink := newSink(ctx, cfg.AudioOutput)
	defer closeSink()

	transport := audio.NewTransport(sink)
	transport.SetVolume(cfg.DefaultVolume)

	store := playlist.NewStore(decoder, transport,
		playlist.WithCoverGenerator(cover.NewGenerator(cfg.CoverSize, cfg.CoverGradient)),
		playlist.WithCollator(cfg.SortLocale),
		playlist.WithRemapOnSort(cfg.SortRemapCurrent),
		playlist.WithSeed(cfg.ShuffleSeed),
	)
	defer store.Close()
	// 播放结束自动下一首
	transport.OnFinished(func() { store.Advance(model.Next) })

	hub := NewHub()
	go hub.Run(ctx)
	unsubscribe := store.Subscribe(hub.PublishSnapshot)
	defer unsubscribe()

	renamer := analysis.NewRenamer(analysis.NewAnalyzer(decoder), cfg.RenameWorkers)
	apiHandler := NewAPIHandler(ctx, store, transport, renamer, hub, cfg)
	go apiHandler.ReportPosition(ctx, 500*time.Millisecond)

	if libraryDir != "" {
		w := watcher.New(libraryDir, store)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("音乐目录监听失败", logger.String("dir", libraryDir), logger.ErrorField(err))
			}
		}()
	}

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      NewRouter(apiHandler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return err
	}
	logger.Info("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	cancel()
	apiHandler.Wait()

	logger.Info("Server stopped")
	return nil
}

func ensureDirExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("Creating directory", logger.String("path", path))
		return os.MkdirAll(path, 0755)
	} else if err != nil {
		return err
	}
	return nil
}
