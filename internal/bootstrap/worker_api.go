package bootstrap

import (
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	httpin "triage_worker/adapter/in/http"
)

// NewAPI builds the fiber app exposing health, readiness, stats and the
// manual enqueue endpoint.
func NewAPI(w *Worker) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "triage_worker",
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	deps := w.Deps()
	httpin.NewHealthHandlerWithDeps(deps.DB, deps.Redis, deps.Mongo).Register(app)
	httpin.NewStatsHandler(w.Pool(), deps.DB, deps.Redis, deps.Stats, deps.Drift, deps.Stream, deps.IngestProducer).Register(app)

	return app
}
