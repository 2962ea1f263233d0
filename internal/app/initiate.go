package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/shandysiswandi/twofa/internal/pkg/authz"
	"github.com/shandysiswandi/twofa/internal/pkg/clock"
	"github.com/shandysiswandi/twofa/internal/pkg/config"
	"github.com/shandysiswandi/twofa/internal/pkg/goroutine"
	"github.com/shandysiswandi/twofa/internal/pkg/hash"
	"github.com/shandysiswandi/twofa/internal/pkg/idempotency"
	"github.com/shandysiswandi/twofa/internal/pkg/instrument"
	"github.com/shandysiswandi/twofa/internal/pkg/jwt"
	"github.com/shandysiswandi/twofa/internal/pkg/mfa"
	"github.com/shandysiswandi/twofa/internal/pkg/otp"
	"github.com/shandysiswandi/twofa/internal/pkg/router"
	"github.com/shandysiswandi/twofa/internal/pkg/uid"
	"github.com/shandysiswandi/twofa/internal/pkg/validator"
)

const pingTimeout = 5 * time.Second

// configPath honours CONFIG_PATH, then LOCAL=true for a checkout, then the
// container mount.
func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	if os.Getenv("LOCAL") == "true" {
		return "./config/config.yaml"
	}
	return "/config/config.yaml"
}

func (a *App) initConfig() error {
	cfg, err := config.NewViper(configPath())
	if err != nil {
		return err
	}
	if tz := cfg.GetString("app.tz"); tz != "" {
		if err := os.Setenv("TZ", tz); err != nil {
			return fmt.Errorf("set TZ: %w", err)
		}
	}

	a.config = cfg
	a.onClose("config", func(context.Context) error { return cfg.Close() })
	return nil
}

func (a *App) initInstrument() error {
	c := a.config
	ins, err := instrument.New(a.ctx, &instrument.Config{
		Enabled:          c.GetBool("instrument.enabled"),
		ServiceName:      c.GetString("instrument.service_name"),
		ServiceVersion:   c.GetString("instrument.service_version"),
		Environment:      c.GetString("instrument.env"),
		OTLPEndpoint:     c.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       c.GetBool("instrument.otlp_secure"),
		TraceSampleRatio: c.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  c.GetSecond("instrument.metric_interval_seconds"),
		MaskFields:       c.GetArray("instrument.log_mask_fields"),
	})
	if err != nil {
		return err
	}

	a.ins = ins
	a.onClose("instrument", ins.Shutdown)
	return nil
}

func (a *App) initLibraries() error {
	c := a.config

	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.goroutine = goroutine.NewManager(c.GetInt("app.server.max_goroutine"))
	a.hmac = hash.NewHMACSHA256(c.GetString("hash.hmac.secret"))
	a.totp = otp.NewVerifier(totpWindow(c))
	a.mfaRecoveryCode = mfa.NewRecoveryCode()
	a.token = mfa.NewRandomToken()

	v, err := validator.NewV10Validator()
	if err != nil {
		return fmt.Errorf("validator: %w", err)
	}
	a.validator = v

	var snow *uid.Snowflake
	if node := c.GetInt64("app.node_id"); node > 0 {
		snow, err = uid.NewSnowflakeWithNode(node)
	} else {
		snow, err = uid.NewSnowflake()
	}
	if err != nil {
		return fmt.Errorf("snowflake: %w", err)
	}
	a.uid = snow

	ring, err := a.mfaKeyRing()
	if err != nil {
		return fmt.Errorf("mfa key ring: %w", err)
	}
	a.mfaEncryptor = mfa.NewAESGCMEncryptor(ring)
	return nil
}

// totpWindow keeps an explicit 0 (current step only) and falls back to
// otp.DefaultWindow when twofactor.totp.window_steps is absent.
func totpWindow(c config.Config) uint {
	if c.GetString("twofactor.totp.window_steps") == "" {
		return otp.DefaultWindow
	}
	return c.GetUint("twofactor.totp.window_steps")
}

// mfaKeyRing seals with mfa.secret under id mfa.key_id and keeps the keys in
// mfa.retired_keys ("id:base64") around for opening older seeds.
func (a *App) mfaKeyRing() (*mfa.KeyRing, error) {
	activeID := uint8(max(a.config.GetUint("mfa.key_id"), 1))
	active, err := base64.StdEncoding.DecodeString(a.config.GetString("mfa.secret"))
	if err != nil {
		return nil, fmt.Errorf("mfa.secret: %w", err)
	}

	keys := map[uint8][]byte{activeID: active}
	for raw, encoded := range a.config.GetMap("mfa.retired_keys") {
		id, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("mfa.retired_keys id %q: %w", raw, err)
		}
		if _, taken := keys[uint8(id)]; taken {
			continue
		}
		if keys[uint8(id)], err = base64.StdEncoding.DecodeString(encoded); err != nil {
			return nil, fmt.Errorf("mfa.retired_keys %d: %w", id, err)
		}
	}

	return mfa.NewKeyRing(activeID, keys)
}

func (a *App) initJWT() error {
	c := a.config
	j, err := jwt.NewHS512(jwt.Config{
		Secret:    []byte(c.GetString("jwt.secret")),
		Issuer:    c.GetString("jwt.issuer"),
		Audiences: c.GetArray("jwt.audiences"),
		TTL:       c.GetMinute("jwt.ttl_minutes"),
		Leeway:    c.GetSecond("jwt.leeway_seconds"),
		Clock:     a.clock,
		UUID:      a.uuid,
	})
	if err != nil {
		return err
	}
	a.jwt = j
	return nil
}

func (a *App) initDatabase() error {
	c := a.config
	pc, err := pgxpool.ParseConfig(c.GetString("database.url"))
	if err != nil {
		return fmt.Errorf("parse database.url: %w", err)
	}
	pc.MaxConns = c.GetInt32("database.pool.max_conns")
	pc.MinConns = c.GetInt32("database.pool.min_conns")
	pc.MaxConnLifetime = c.GetSecond("database.pool.max_conn_lifetime_seconds")
	pc.MaxConnIdleTime = c.GetSecond("database.pool.max_conn_idle_seconds")
	pc.HealthCheckPeriod = c.GetSecond("database.pool.health_check_period_seconds")

	pool, err := pgxpool.NewWithConfig(a.ctx, pc)
	if err != nil {
		return err
	}
	a.onClose("postgres", func(context.Context) error { pool.Close(); return nil })

	ctx, cancel := context.WithTimeout(a.ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	a.dbConn = pool
	return nil
}

func (a *App) initCache() error {
	opt, err := redis.ParseURL(a.config.GetString("redis.url"))
	if err != nil {
		return fmt.Errorf("parse redis.url: %w", err)
	}

	rdb := redis.NewClient(opt)
	a.onClose("redis", func(context.Context) error { return rdb.Close() })

	ctx, cancel := context.WithTimeout(a.ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	a.cacheConn = rdb
	a.idemp = idempotency.New(rdb)
	return nil
}

func (a *App) initCasbin() error {
	e, err := authz.NewEnforcer(a.config.GetArray("authz.policies"), a.config.GetMap("authz.roles"))
	if err != nil {
		return err
	}
	a.casbin = e
	return nil
}

func (a *App) initHTTPServer() error {
	c := a.config
	a.router = router.NewRouter(router.Config{
		Config:     c,
		UUID:       a.uuid,
		JWT:        a.jwt,
		Instrument: a.ins,
	})

	withCORS := cors.New(cors.Options{
		AllowedOrigins:   c.GetArray("app.server.cors"),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", router.HeaderCorrelationID, router.HeaderRequestID},
		ExposedHeaders:   []string{router.HeaderCorrelationID, "Retry-After"},
		AllowCredentials: true,
	}).Handler(a.router)

	a.httpServer = &http.Server{
		Addr:              c.GetString("app.server.http.address"),
		Handler:           withCORS,
		ReadTimeout:       c.GetSecond("app.server.http.read_timeout_seconds"),
		ReadHeaderTimeout: c.GetSecond("app.server.http.read_header_timeout_seconds"),
		WriteTimeout:      c.GetSecond("app.server.http.write_timeout_seconds"),
		IdleTimeout:       c.GetSecond("app.server.http.idle_timeout_seconds"),
	}
	return nil
}
