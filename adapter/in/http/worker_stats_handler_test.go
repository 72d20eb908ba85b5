package http

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"triage_worker/adapter/in/worker"
	"triage_worker/core/service/pipeline"
	"triage_worker/internal/stream"
	"triage_worker/pkg/metrics"
)

// testStatsApp wires a stats handler against an unreachable Redis and no
// Postgres pool: the endpoint must still answer with what it has.
func testStatsApp(t *testing.T) *fiber.App {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = rdb.Close() })
	redisStream := stream.NewRedisStream(rdb, "triage")

	pool := worker.NewPool(worker.NewHandler(nil, zerolog.Nop()), nil, zerolog.Nop())
	stats := metrics.NewStageRegistry(100)
	stats.Record("embed", 5*time.Millisecond)
	drift := pipeline.NewDriftMonitor(pipeline.DefaultDriftConfig(), zerolog.Nop())

	app := fiber.New()
	NewStatsHandler(pool, nil, rdb, stats, drift, redisStream, stream.NewIngestProducer(redisStream)).Register(app)
	return app
}

func TestStatsIncludesConnectionAndPoolSections(t *testing.T) {
	app := testStatsApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/stats", nil), 5000)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	for _, section := range []string{`"pool"`, `"stages"`, `"drift"`, `"connections"`, `"redis"`, `"queue_pending"`} {
		if !strings.Contains(string(body), section) {
			t.Errorf("stats response missing %s section: %s", section, body)
		}
	}
	// Redis is unreachable, so queue depth degrades to the sentinel instead
	// of failing the whole endpoint.
	if !strings.Contains(string(body), `"queue_pending":-1`) {
		t.Errorf("queue_pending sentinel missing: %s", body)
	}
	// No Postgres pool was configured; its section must be absent, not null.
	if strings.Contains(string(body), `"postgres"`) {
		t.Errorf("postgres stats reported without a configured pool: %s", body)
	}
}

func TestEnqueueRejectsInvalidBody(t *testing.T) {
	app := testStatsApp(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{nope"},
		{"missing conversation id", `{"messages":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/queue/conversations", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req, 5000)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != fiber.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}
