package app

import (
	"bytes"
	"context"
	"os"
	"sync"
	"testing"

	"github.com/specialistvlad/sosappend/internal/blobstore/memstore"
	"github.com/specialistvlad/sosappend/internal/config"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// TestStores are the in-memory stores behind an App built by SetupAppTest.
type TestStores struct {
	Results *memstore.Store
	Modules *memstore.Store
}

// SetupAppTest creates an App over fresh in-memory stores and the default
// job. Set SOSAPPEND_TEST_LOGS=true to print the captured log on cleanup.
func SetupAppTest(t *testing.T, opts ...Option) (*App, TestStores, *SafeBuffer) {
	t.Helper()

	logBuffer := &SafeBuffer{}
	stores := TestStores{Results: memstore.New(), Modules: memstore.New()}
	cfg := &Config{LogLevel: "debug", LogFormat: "text", Writer: "test-writer"}

	opts = append([]Option{
		WithJob(config.Default()),
		WithStores(stores.Results, stores.Modules),
	}, opts...)
	testApp, err := NewApp(context.Background(), logBuffer, cfg, opts...)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}

	t.Cleanup(func() {
		_ = testApp.Close()
		if os.Getenv("SOSAPPEND_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, stores, logBuffer
}
