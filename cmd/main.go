package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/BochengYin/AIMiniGames/config"
	"github.com/BochengYin/AIMiniGames/db"
	"github.com/BochengYin/AIMiniGames/internal/auth/domain"
	"github.com/BochengYin/AIMiniGames/internal/auth/handler"
	pgrepo "github.com/BochengYin/AIMiniGames/internal/auth/repository/postgres"
	redisrepo "github.com/BochengYin/AIMiniGames/internal/auth/repository/redis"
	"github.com/BochengYin/AIMiniGames/internal/auth/service"
	"github.com/BochengYin/AIMiniGames/internal/auth/store/memory"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()
	ctx := context.Background()

	users, ledger, resets := buildStores(ctx, cfg)

	tokenService := service.NewTokenService(cfg.TokenSecret,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.ResetTokenTTL, cfg.ClockSkewLeeway)
	userService := service.NewUserService(users, ledger, resets, tokenService, cfg)
	authHandler := handler.NewAuthHandler(userService, cfg)

	if cfg.AdminEmail != "" {
		if _, err := userService.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminHandle,
			"System Administrator", cfg.AdminPassword); err != nil {
			slog.Error("failed to seed admin user", "error", err)
			os.Exit(1)
		}
	}

	go sweepLoop(ctx, cfg.SweepInterval, ledger, resets)

	app := fiber.New()
	handler.RegisterRoutes(app, authHandler)

	slog.Info("starting auth service", "env", cfg.Env, "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// buildStores picks the backing stores: in-memory by default, postgres when
// DB_URL is set, with an optional redis-backed ledger via REDIS_ADDR.
func buildStores(ctx context.Context, cfg *config.Config) (domain.UserStore, domain.TokenLedger, domain.ResetTokenStore) {
	var (
		users  domain.UserStore
		ledger domain.TokenLedger
		resets domain.ResetTokenStore
	)

	if cfg.DBURL != "" {
		pool, err := db.NewPostgresPool(ctx, cfg.DBURL)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		users = pgrepo.NewUserRepository(pool)
		ledger = pgrepo.NewTokenLedger(pool)
		resets = pgrepo.NewResetTokenStore(pool)
		slog.Info("using postgres stores")
	} else {
		users = memory.NewUserStore()
		ledger = memory.NewTokenLedger()
		resets = memory.NewResetTokenStore()
		slog.Info("using in-memory stores")
	}

	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		ledger = redisrepo.NewTokenLedger(rdb)
		slog.Info("using redis token ledger", "addr", cfg.RedisAddr)
	}

	return users, ledger, resets
}

// sweepLoop reclaims expired ledger and reset entries that were never looked
// up again; lookups already evict on their own.
func sweepLoop(ctx context.Context, interval time.Duration, ledger domain.TokenLedger, resets domain.ResetTokenStore) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		evicted, err := ledger.Sweep(ctx, now)
		if err != nil {
			slog.Warn("ledger sweep failed", "error", err)
		}
		expired, err := resets.Sweep(ctx, now)
		if err != nil {
			slog.Warn("reset token sweep failed", "error", err)
		}
		if evicted+expired > 0 {
			slog.Info("sweep completed", "ledger_evicted", evicted, "reset_expired", expired)
		}
	}
}
