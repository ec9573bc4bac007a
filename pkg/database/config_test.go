package database

import "testing"

func TestConfigValidate(t *testing.T) {
	base := Config{Password: "x", MaxOpenConns: 10, MaxIdleConns: 5}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	noPassword := base
	noPassword.Password = ""
	if err := noPassword.Validate(); err == nil {
		t.Fatalf("expected error for missing password")
	}

	badPool := base
	badPool.MaxIdleConns = 20
	if err := badPool.Validate(); err == nil {
		t.Fatalf("expected error when idle > open")
	}

	zeroOpen := base
	zeroOpen.MaxOpenConns = 0
	if err := zeroOpen.Validate(); err == nil {
		t.Fatalf("expected error for zero max open conns")
	}
}
