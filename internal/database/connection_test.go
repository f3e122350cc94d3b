package database

import (
	"testing"
	"time"
)

func TestPoolConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	t.Run("zero value gets service defaults", func(t *testing.T) {
		t.Parallel()
		p := PoolConfig{}.withDefaults()
		if p.MaxOpenConns != 25 {
			t.Fatalf("MaxOpenConns: got %d", p.MaxOpenConns)
		}
		if p.MaxIdleConns != 5 {
			t.Fatalf("MaxIdleConns: got %d", p.MaxIdleConns)
		}
		if p.ConnMaxLifetime != 15*time.Minute {
			t.Fatalf("ConnMaxLifetime: got %v", p.ConnMaxLifetime)
		}
		if p.ConnMaxIdleTime != 5*time.Minute {
			t.Fatalf("ConnMaxIdleTime: got %v", p.ConnMaxIdleTime)
		}
	})

	t.Run("explicit values are kept", func(t *testing.T) {
		t.Parallel()
		p := PoolConfig{
			MaxOpenConns:    50,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: time.Minute,
		}.withDefaults()
		if p.MaxOpenConns != 50 || p.MaxIdleConns != 10 {
			t.Fatalf("conns: got (%d, %d)", p.MaxOpenConns, p.MaxIdleConns)
		}
		if p.ConnMaxLifetime != time.Hour || p.ConnMaxIdleTime != time.Minute {
			t.Fatalf("lifetimes: got (%v, %v)", p.ConnMaxLifetime, p.ConnMaxIdleTime)
		}
	})

	t.Run("idle capped at open", func(t *testing.T) {
		t.Parallel()
		p := PoolConfig{MaxOpenConns: 3, MaxIdleConns: 10}.withDefaults()
		if p.MaxIdleConns != 3 {
			t.Fatalf("MaxIdleConns: got %d, want capped at 3", p.MaxIdleConns)
		}
	})
}
