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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Duet/internal/adapters/cipher"
	router "github.com/dkeye/Duet/internal/adapters/http"
	"github.com/dkeye/Duet/internal/adapters/identity"
	"github.com/dkeye/Duet/internal/adapters/redisbus"
	wssignal "github.com/dkeye/Duet/internal/adapters/signal"
	"github.com/dkeye/Duet/internal/adapters/storage/badgerstore"
	"github.com/dkeye/Duet/internal/adapters/storage/postgres"
	"github.com/dkeye/Duet/internal/app"
	"github.com/dkeye/Duet/internal/config"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

const shutdownTimeout = 5 * time.Second

// store is what both durable backends provide.
type store interface {
	core.Store
	core.Directory
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.Log)

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.Pretty {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()
	if err := seedDirectory(ctx, st, cfg.Directory.Seed); err != nil {
		return err
	}

	aead, err := newCipher(cfg)
	if err != nil {
		return err
	}
	idp, err := newIdentity(cfg, st)
	if err != nil {
		return err
	}
	action, err := app.ParseBackpressureAction(cfg.Backpressure)
	if err != nil {
		return err
	}
	registry := app.NewRegistry(app.SimplePolicy{Action: action})

	g, ctx := errgroup.WithContext(ctx)

	var fanout app.Fanout = registry
	if cfg.Broker.Driver == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Broker.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis %s: %w", cfg.Broker.RedisAddr, err)
		}
		bus := redisbus.New(ctx, rdb, registry)
		defer func() {
			_ = bus.Close()
			_ = rdb.Close()
		}()
		g.Go(func() error { return bus.Run(ctx) })
		fanout = bus
	}

	chat := app.NewChat(st, st, aead, fanout, app.ChatOptions{
		MaxBodyBytes: cfg.MaxBodyBytes,
		StoreTimeout: cfg.StoreTimeout,
	})
	ctl := wssignal.NewChatWSController(app.SessionDeps{
		Identity: idp,
		Fanout:   fanout,
		Chat:     chat,
		Limiter:  app.NewMalformedLimiter(cfg.MalformedLimit, cfg.MalformedWindow),
	}, wssignal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{Chat: ctl, Health: st, Rooms: registry})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Duet server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		bs, err := badgerstore.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return bs, nil
	}
}

func seedDirectory(ctx context.Context, dir core.Directory, seed []config.SeedEntry) error {
	for _, e := range seed {
		p, err := domain.NewParticipant(domain.ParticipantID(e.ID), e.DisplayName)
		if err != nil {
			return fmt.Errorf("directory seed %q: %w", e.ID, err)
		}
		if err := dir.PutParticipant(ctx, p); err != nil {
			return err
		}
	}
	if len(seed) > 0 {
		log.Info().Int("participants", len(seed)).Msg("directory seeded")
	}
	return nil
}

func newCipher(cfg *config.Config) (*cipher.AEAD, error) {
	var (
		key []byte
		err error
	)
	if cfg.Cipher.Key != "" {
		key, err = cipher.ParseKey(cfg.Cipher.Key)
	} else {
		log.Warn().Msg("cipher.key not set, deriving message key from secret")
		key, err = cipher.DeriveKey(cfg.Secret)
	}
	if err != nil {
		return nil, err
	}
	return cipher.New(key)
}

func newIdentity(cfg *config.Config, dir core.Directory) (core.IdentityProvider, error) {
	switch cfg.Auth.Mode {
	case "cookie":
		cookies, err := identity.NewCookieStore(cfg.Secret)
		if err != nil {
			return nil, err
		}
		return identity.NewCookie(cookies, dir), nil
	default:
		return identity.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	}
}
