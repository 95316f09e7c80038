package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"arena-server/internal/config"
	"arena-server/internal/database"
	"arena-server/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		envFile       string
		port          int
		broadcastPort int
		password      string
		statsDir      string
		adminAddr     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Open a lobby and run one match",
		Long: `Open a lobby on the game port, answer LAN discovery probes, run the
match once every seated player is ready, and write the stats file when it
ends. Flags override the environment and the .env file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("broadcast-port") {
				cfg.Server.BroadcastPort = broadcastPort
			}
			if flags.Changed("password") {
				cfg.Server.Password = password
			}
			if flags.Changed("stats-dir") {
				cfg.Server.StatsDir = statsDir
			}
			if flags.Changed("admin-addr") {
				cfg.AdminAddr = adminAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Dotenv file to load")
	cmd.Flags().IntVarP(&port, "port", "p", 44444, "TCP game port")
	cmd.Flags().IntVar(&broadcastPort, "broadcast-port", 44445, "UDP discovery port, negative to disable")
	cmd.Flags().StringVar(&password, "password", "", "Lobby password, empty for an open lobby")
	cmd.Flags().StringVar(&statsDir, "stats-dir", "./stats", "Directory for stats files")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "Address of the admin HTTP server, empty to disable")

	return cmd
}

func run(cfg config.Config) error {
	console := newConsole(os.Stdout)
	hub := server.NewEventHub()

	opts := []server.Option{server.WithLogLevel(cfg.LogLevel)}

	var (
		db   database.Service
		repo *server.StatsRepository
	)
	if cfg.DBDriver != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var err error
		db, err = database.New(ctx, cfg.DBDriver, cfg.DBDSN)
		if err != nil {
			return err
		}
		defer db.Close()

		repo = server.NewStatsRepository(db.DB(), db.Dialect())
		opts = append(opts, server.WithStatsSinks(repo))
	}
	if cfg.S3Bucket != "" {
		opts = append(opts, server.WithStatsSinks(
			server.NewS3Archive(newS3Client(cfg), cfg.S3Bucket, cfg.S3Prefix)))
	}

	srv, err := server.New(cfg.Server, hub.LogSink(console.Log), hub.CallbackSink(console.Callback), opts...)
	if err != nil {
		return err
	}

	var httpServer *http.Server
	if cfg.AdminAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           server.NewAdmin(srv, hub, repo, db).RegisterRoutes(),
			IdleTimeout:       time.Minute,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				console.Log(fmt.Sprintf("ERROR: admin server: %v", err))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		srv.Listen()
		close(done)
	}()

	gracefulShutdown(console, srv, httpServer, done)
	return nil
}

// gracefulShutdown waits for the match to finish or for a signal, then stops
// the arena and the admin server.
func gracefulShutdown(console *console, srv *server.Server, httpServer *http.Server, done <-chan struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-done:
	case <-ctx.Done():
		console.Log("Shutdown signal received, press Ctrl+C again to force")
		stop()
		srv.Close()
		<-done
	}
	srv.Close()

	if httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		console.Log(fmt.Sprintf("WARN: admin server forced to shutdown: %v", err))
	}
}

// newS3Client builds a client from the ARENA_S3_* settings and the standard
// AWS_* credential variables. A custom endpoint switches to path-style
// addressing for MinIO and friends.
func newS3Client(cfg config.Config) *s3.Client {
	opts := s3.Options{
		Region: cfg.S3Region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
				if id == "" || secret == "" {
					return aws.Credentials{}, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
				}
				return aws.Credentials{
					AccessKeyID:     id,
					SecretAccessKey: secret,
					SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
					Source:          "environment",
				}, nil
			})),
	}
	if cfg.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.S3Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}
