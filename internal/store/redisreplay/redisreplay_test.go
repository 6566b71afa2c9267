package redisreplay

import "testing"

// These only cover client construction; Next/Accept need a live redis
// instance and are exercised by the auth/balance components' own
// integration paths when Redis is configured, not by unit tests here.

func TestNewCounterDoesNotPanic(t *testing.T) {
	c := NewCounter("127.0.0.1:6379", "sopipe:test:counter")
	if c.client == nil {
		t.Fatal("expected a non-nil redis client")
	}
	if c.key != "sopipe:test:counter" {
		t.Errorf("key = %q", c.key)
	}
}

func TestNewReplayGuardDoesNotPanic(t *testing.T) {
	g := NewReplayGuard("127.0.0.1:6379", "sopipe:test:auth")
	if g.client == nil {
		t.Fatal("expected a non-nil redis client")
	}
	if g.prefix != "sopipe:test:auth" {
		t.Errorf("prefix = %q", g.prefix)
	}
}
