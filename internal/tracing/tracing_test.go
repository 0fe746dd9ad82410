package tracing

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTestConfig(t *testing.T) (*Config, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return &Config{TracerProvider: tp, Propagators: propagation.TraceContext{}}, rec
}

func attr(t *testing.T, attrs []attribute.KeyValue, key string) attribute.Value {
	t.Helper()
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	t.Fatalf("attribute %q not found", key)
	return attribute.Value{}
}

func TestMiddlewareSpanPerRequest(t *testing.T) {
	cfg, rec := newTestConfig(t)
	app := fiber.New()
	app.Use(Middleware(cfg))
	app.Get("/cards/:id", func(c *fiber.Ctx) error {
		if !trace.SpanFromContext(c.UserContext()).SpanContext().IsValid() {
			t.Error("handler context carries no span")
		}
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/cards/3", nil))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name() != "GET /cards/:id" {
		t.Fatalf("name = %q", s.Name())
	}
	if s.SpanKind() != trace.SpanKindServer {
		t.Fatalf("kind = %v", s.SpanKind())
	}
	if got := attr(t, s.Attributes(), "http.route").AsString(); got != "/cards/:id" {
		t.Fatalf("route = %q", got)
	}
	if got := attr(t, s.Attributes(), "http.response.status_code").AsInt64(); got != 200 {
		t.Fatalf("status = %d", got)
	}
}

func TestMiddlewareJoinsIncomingTrace(t *testing.T) {
	cfg, rec := newTestConfig(t)
	app := fiber.New()
	app.Use(Middleware(cfg))
	app.Get("/", func(c *fiber.Ctx) error { return nil })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	if _, err := app.Test(req); err != nil {
		t.Fatal(err)
	}
	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d", len(spans))
	}
	if got := spans[0].SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("trace id = %s", got)
	}
}

func TestMiddlewareRecordsError(t *testing.T) {
	cfg, rec := newTestConfig(t)
	app := fiber.New()
	app.Use(Middleware(cfg))
	app.Get("/boom", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusServiceUnavailable, "down") })

	if _, err := app.Test(httptest.NewRequest("GET", "/boom", nil)); err != nil {
		t.Fatal(err)
	}
	s := rec.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Fatalf("status = %v", s.Status())
	}
	if got := attr(t, s.Attributes(), "http.response.status_code").AsInt64(); got != 503 {
		t.Fatalf("status code = %d", got)
	}
}

func TestNilConfigPassthrough(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(nil))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("resp = %v, err = %v", resp, err)
	}
}

func TestSetupStdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	tp, err := Setup(true, &buf)
	if err != nil {
		t.Fatal(err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "divination")
	span.End()
	if err := Shutdown(context.Background(), tp); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"divination"`)) {
		t.Fatalf("exporter output missing span: %s", buf.String())
	}
	if err := Shutdown(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
}
