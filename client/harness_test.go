package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"swapkv/internal/api"
	"swapkv/internal/engine"
	"swapkv/internal/service"
)

type systemUnderTest struct {
	BaseURL  string
	shutdown func()
}

func (s *systemUnderTest) Close() {
	if s.shutdown != nil {
		s.shutdown()
	}
}

// startSystemUnderTest runs against SWAPKV_SERVER_CMD or SWAPKV_SERVER_URL when set and
// falls back to an in-process server.
func startSystemUnderTest(t *testing.T) *systemUnderTest {
	t.Helper()

	if cmd := os.Getenv("SWAPKV_SERVER_CMD"); cmd != "" {
		sut, err := startExternalServer(t, cmd)
		if err != nil {
			t.Fatalf("start external server: %v", err)
		}
		return sut
	}

	if url := os.Getenv("SWAPKV_SERVER_URL"); url != "" {
		t.Logf("SWAPKV_SERVER_URL set; using existing server at %s", url)
		return &systemUnderTest{BaseURL: url}
	}

	logger := zaptest.NewLogger(t)
	svc := service.New(engine.New(engine.WithLogger(logger)), service.WithLogger(logger))
	srv := httptest.NewServer(api.NewServer(svc,
		api.WithLogger(logger),
		api.WithConfig(api.Config{}),
	))
	return &systemUnderTest{
		BaseURL:  srv.URL,
		shutdown: srv.Close,
	}
}

func startExternalServer(t *testing.T, cmdStr string) (*systemUnderTest, error) {
	t.Helper()

	dataDir, err := os.MkdirTemp("", "swapkv-e2e-data-*")
	if err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	addr, err := freeAddr()
	if err != nil {
		return nil, fmt.Errorf("pick free addr: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("SWAPKV_LISTEN=%s", addr),
		fmt.Sprintf("SWAPKV_JOURNAL_PATH=%s", filepath.Join(dataDir, "events.journal")),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("cmd start: %w", err)
	}
	baseURL := "http://" + addr
	if err := waitForReady(baseURL, 10*time.Second); err != nil {
		_ = cmd.Process.Kill()
		cancel()
		return nil, fmt.Errorf("wait for ready: %w", err)
	}

	shutdown := func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		cancel()
		_ = os.RemoveAll(dataDir)
	}
	return &systemUnderTest{BaseURL: baseURL, shutdown: shutdown}, nil
}

func waitForReady(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server at %s not ready after %s", baseURL, timeout)
}

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return l.Addr().String(), nil
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// uniqueKey keeps tests independent when they share an external server.
func uniqueKey(name string) []byte {
	return append([]byte(name+"/"), NewPartyID()...)
}
