package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestApplyPlatformDefaults(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		vars map[string]string
		want Config
	}{
		{
			name: "Fallbacks",
			cfg:  Config{Addr: defaultAddr},
			vars: map[string]string{
				"DATABASE_URL": "postgres://db",
				"REDIS_URL":    "redis://cache:6379/0",
				"PORT":         "9000",
			},
			want: Config{
				Addr:        "0.0.0.0:9000",
				DatabaseURL: "postgres://db",
				Redis:       RedisConfig{URL: "redis://cache:6379/0", Enabled: true},
			},
		},
		{
			name: "ExplicitWins",
			cfg: Config{
				Addr:        "127.0.0.1:7000",
				DatabaseURL: "postgres://explicit",
				Redis:       RedisConfig{URL: "redis://explicit"},
			},
			vars: map[string]string{
				"DATABASE_URL": "postgres://db",
				"REDIS_URL":    "redis://cache",
				"PORT":         "9000",
			},
			want: Config{
				Addr:        "127.0.0.1:7000",
				DatabaseURL: "postgres://explicit",
				Redis:       RedisConfig{URL: "redis://explicit"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.applyPlatformDefaults(env(tt.vars))
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	require.Error(t, (&Config{}).validate())
	require.NoError(t, (&Config{DatabaseURL: "postgres://db"}).validate())

	cfg := Config{DatabaseURL: "postgres://db", Kafka: KafkaConfig{Brokers: []string{"kafka:9092"}}}
	require.Error(t, cfg.validate())
	cfg.Kafka.Topic = "orders"
	require.NoError(t, cfg.validate())
}
