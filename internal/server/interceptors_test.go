package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nextmonth/smartsite/internal/model"
)

const protectedMethod = "/grpc.reflection.v1.ServerReflection/ServerReflectionInfo"

// stubHandler is a no-op gRPC handler used in interceptor tests.
func stubHandler(_ context.Context, _ any) (any, error) {
	return "ok", nil
}

func TestAuthInterceptor_Disabled(t *testing.T) {
	interceptor := AuthInterceptor("")
	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: protectedMethod}, stubHandler)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp != "ok" {
		t.Fatalf("expected 'ok', got %v", resp)
	}
}

func TestAuthInterceptor_HealthExempt(t *testing.T) {
	interceptor := AuthInterceptor("secret")
	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, stubHandler)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp != "ok" {
		t.Fatalf("expected 'ok', got %v", resp)
	}
}

func TestAuthInterceptor_Rejects(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"missing metadata", context.Background()},
		{"missing header", metadata.NewIncomingContext(context.Background(), metadata.Pairs("other", "value"))},
		{"wrong token", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer wrong"))},
		{"invalid scheme", metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic secret"))},
	}
	interceptor := AuthInterceptor("secret")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := interceptor(tt.ctx, nil, &grpc.UnaryServerInfo{FullMethod: protectedMethod}, stubHandler)
			if status.Code(err) != codes.Unauthenticated {
				t.Fatalf("expected Unauthenticated, got %v", err)
			}
		})
	}
}

func TestAuthInterceptor_CorrectToken(t *testing.T) {
	interceptor := AuthInterceptor("secret")
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer secret"))
	resp, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: protectedMethod}, stubHandler)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp != "ok" {
		t.Fatalf("expected 'ok', got %v", resp)
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func TestStreamAuthInterceptor(t *testing.T) {
	interceptor := StreamAuthInterceptor("secret")
	called := 0
	handler := func(any, grpc.ServerStream) error { called++; return nil }

	err := interceptor(nil, &fakeStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: protectedMethod}, handler)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}

	err = interceptor(nil, &fakeStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}, handler)
	if err != nil {
		t.Fatalf("health watch should be exempt, got %v", err)
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer secret"))
	if err := interceptor(nil, &fakeStream{ctx: ctx}, &grpc.StreamServerInfo{FullMethod: protectedMethod}, handler); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if called != 2 {
		t.Fatalf("handler called %d times, want 2", called)
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	panicky := func(context.Context, any) (any, error) { panic("boom") }
	_, err := RecoveryInterceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: protectedMethod}, panicky)
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
}

func TestRecoverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.recoverHTTP(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/anything", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestObserveHTTP_TracksServerErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/broken", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusBadGateway, "upstream failed")
	})
	mux.HandleFunc("GET /api/missing", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "nope")
	})
	h := srv.observeHTTP(mux)

	for _, path := range []string{"/api/broken", "/api/broken", "/api/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	r := srv.Tracker().Read(model.MetricAPIErrorRate, model.Threshold{ErrorCount: 5})
	if r.Value != 2 {
		t.Fatalf("tracked %v API errors, want 2", r.Value)
	}
	routes, _ := r.Details["routeDetails"].(map[string]int)
	if routes["GET /api/broken"] != 2 {
		t.Fatalf("route details = %v", r.Details["routeDetails"])
	}
}
