package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"playd/config"
	"playd/core/pipeline"
	"playd/core/queue"
	"playd/core/session"
	"playd/db"
	"playd/logger"
	"playd/model"
	"playd/playlist"
	"playd/repository"
	"playd/server"

	"github.com/spf13/cobra"
)

var (
	flagSocket   string
	flagPlaylist string
	flagDB       string
	flagArtist   string
	flagAlbum    string
	flagGenre    string
	flagVolume   float64
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the playback daemon",
	Long: `Start the playback daemon: bind the control socket, seed the queue
from a playlist or the music library, and serve commands until SHUTDOWN
or a termination signal.`,
	Run: func(cmd *cobra.Command, args []string) {
		runDaemon()
	},
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, daemonCmd} {
		c.Flags().StringVar(&flagSocket, "socket", "", "control socket path (default: per-process file in the temp dir)")
		c.Flags().StringVar(&flagPlaylist, "playlist", "", "M3U playlist to seed the queue from")
		c.Flags().StringVar(&flagDB, "db", "", "music library database to seed the queue from")
		c.Flags().StringVar(&flagArtist, "artist", "", "library filter: artist substring")
		c.Flags().StringVar(&flagAlbum, "album", "", "library filter: album substring")
		c.Flags().StringVar(&flagGenre, "genre", "", "library filter: genre substring")
		c.Flags().Float64Var(&flagVolume, "volume", -1, "initial volume, 0.0-1.0")
	}
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon() {
	cfg := config.Load()
	if flagSocket != "" {
		cfg.SocketPath = flagSocket
	}
	if flagPlaylist != "" {
		cfg.PlaylistPath = flagPlaylist
	}
	if flagDB != "" {
		cfg.LibraryDB = flagDB
	}
	if flagVolume >= 0 {
		cfg.DefaultVolume = flagVolume
	}

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAge,
		Compress:   true,
	})

	seed, err := seedTracks(cfg)
	if err != nil {
		log.Fatalf("Failed to seed queue: %v", err)
	}

	pipe := pipeline.NewController(cfg.DefaultVolume)
	q := queue.New(cfg.HistoryLimit)
	hub := server.NewHub()
	go hub.Run()

	daemon := session.NewDaemon(pipe, q, cfg.DefaultVolume,
		session.WithNotifier(hub),
		session.WithPositionInterval(cfg.PositionInterval),
	)
	if len(seed) > 0 {
		daemon.Seed(seed)
		logger.Info("queue seeded", logger.Int("tracks", len(seed)))
	}

	srv := server.New(cfg.SocketPath, daemon, hub)
	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start control server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.PlaylistPath != "" {
		if err := playlist.Watch(ctx, cfg.PlaylistPath, daemon.NotifyPlaylistChanged); err != nil {
			logger.Warn("playlist watcher unavailable", logger.ErrorField(err))
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("termination signal received")
		cancel()
	}()

	logger.Info("daemon started", logger.String("socket", cfg.SocketPath))
	daemon.Run(ctx)

	srv.Stop()
	hub.Stop()
	db.CloseDB()
	logger.Info("daemon stopped")
}

// seedTracks builds the initial queue: an M3U playlist wins, then the
// library database with optional filters; otherwise the queue starts empty
// and waits for ENQUEUE.
func seedTracks(cfg *config.Config) ([]model.Track, error) {
	if cfg.PlaylistPath != "" {
		return playlist.Load(cfg.PlaylistPath)
	}
	if cfg.LibraryDB != "" {
		if err := db.ConnectDB(cfg.LibraryDB); err != nil {
			return nil, err
		}
		repo := repository.NewSQLiteLibraryRepository()
		return repo.TracksByFilter(repository.Filter{
			Artist: flagArtist,
			Album:  flagAlbum,
			Genre:  flagGenre,
		})
	}
	return nil, nil
}
