package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/teamchat/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "https://chat.example.com/invite", cfg.Server.BaseURL)
	require.Equal(t, []string{"https://chat.example.com"}, cfg.Server.CORSOrigins)
	require.Equal(t, 50, cfg.Server.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.Server.RateLimit.Window)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 2*time.Second, cfg.Cache.Redis.Timeout)
	require.Equal(t, 512, cfg.Cache.Memory.Size)
	require.Equal(t, 45*time.Second, cfg.Cache.Memory.LookupTTL)
	require.Equal(t, 20*time.Minute, cfg.Cache.Memory.IdentityTTL)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, "teamchat-test", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, "no-reply@example.com", cfg.Email.SMTP.From)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.Equal(t, 72*time.Hour, cfg.Invites.Expiry)
	require.Equal(t, 40, cfg.Invites.TokenBytes)
	require.Equal(t, 14, cfg.Invites.LinkMaxDays)

	require.Equal(t, "@every 5m", cfg.Maintenance.InviteExpirySchedule)
	require.Empty(t, cfg.Maintenance.CachePurgeSchedule)

	// untouched sections keep their defaults
	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/teamchat.sqlite", cfg.Database.Path)
	require.False(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, time.Hour, cfg.Auth.JWT.TTL)
	require.Equal(t, 7*24*time.Hour, cfg.Invites.Expiry)
	require.Equal(t, 30, cfg.Invites.LinkMaxDays)
	require.Equal(t, "@hourly", cfg.Maintenance.CachePurgeSchedule)
	require.Empty(t, cfg.Auth.JWT.Secret)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("TEAMCHAT_SERVER_PORT", "7070")
	t.Setenv("TEAMCHAT_AUTH_JWT_SECRET", "from-env")
	t.Setenv("TEAMCHAT_INVITES_EXPIRY", "24h")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "from-env", cfg.Auth.JWT.Secret)
	require.Equal(t, 24*time.Hour, cfg.Invites.Expiry)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{JWT: JWTSettings{Secret: "s", Issuer: "teamchat"}}

	jwtCfg := cfg.JWTServiceConfig()
	require.Equal(t, "s", jwtCfg.Secret)
	require.Equal(t, "teamchat", jwtCfg.Issuer)
	require.Equal(t, auth.DefaultAccessTokenTTL, jwtCfg.AccessTokenTTL)

	cfg.JWT.TTL = 5 * time.Minute
	require.Equal(t, 5*time.Minute, cfg.JWTServiceConfig().AccessTokenTTL)
}

func TestCacheAndEmailAdapters(t *testing.T) {
	cacheCfg := CacheConfig{Redis: RedisCacheConfig{Address: " redis:6379 ", Username: " user ", DB: 3, TLS: true}}
	redisCfg := cacheCfg.RedisClientConfig()
	require.Equal(t, "redis:6379", redisCfg.Address)
	require.Equal(t, "user", redisCfg.Username)
	require.Equal(t, 3, redisCfg.DB)
	require.True(t, redisCfg.TLS)

	emailCfg := EmailConfig{SMTP: SMTPConfig{Enabled: true, Host: "smtp", Port: 25, From: "a@b.c"}}
	smtp := emailCfg.SMTPSettings()
	require.True(t, smtp.Enabled)
	require.Equal(t, "smtp", smtp.Host)
	require.Equal(t, 25, smtp.Port)
	require.Equal(t, "a@b.c", smtp.From)
}

func TestServiceOptionAdapters(t *testing.T) {
	invites := InviteConfig{Expiry: time.Hour, TokenBytes: 16, LinkMaxDays: 3}
	require.Len(t, invites.ServiceOptions("https://chat.example.com/invite"), 4)
	require.Len(t, InviteConfig{}.ServiceOptions(""), 1)

	memory := MemoryCacheConfig{Size: 8}
	require.Len(t, memory.ConversationOptions(), 2)
	require.Len(t, memory.MessageOptions(), 2)
}
