package main

import (
	"context"
	"net/http"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tinyhis/regops/internal/config"
)

// lineWriter hands every write to the test goroutine.
type lineWriter chan string

func (w lineWriter) Write(p []byte) (int, error) {
	w <- string(p)
	return len(p), nil
}

var bannerAddr = regexp.MustCompile(`http://(\S+)/api`)

func TestServeStopsWhenContextCancelled(t *testing.T) {
	logger = zap.NewNop()
	cfg := &config.Stub{
		DBPath:    filepath.Join(t.TempDir(), "his.db"),
		Addr:      "127.0.0.1:0",
		JWTSecret: "0123456789abcdef0123456789abcdef",
		TokenTTL:  time.Hour,
		Seed:      true,
		SeedQuota: 3,
		AdminUser: "admin",
		AdminPass: "admin123",
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := make(lineWriter, 4)
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, out) }()

	var banner string
	select {
	case banner = <-out:
	case err := <-done:
		t.Fatalf("serve returned before serving: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("no banner")
	}
	m := bannerAddr.FindStringSubmatch(banner)
	require.Len(t, m, 2, banner)

	resp, err := http.Get("http://" + m[1] + "/api/auth/demo-info")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
