package main

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

func echoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("X-Path", r.URL.Path)
		w.Header().Set("X-Query", r.URL.Query().Get("q"))
		w.Header().Set("X-Method", r.Method)
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	})
}

func TestProxyHandlerRoundTrip(t *testing.T) {
	handler := NewProxyHandler(echoHandler())

	resp, err := handler(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodPost,
		Path:                  "/analyze",
		QueryStringParameters: map[string]string{"q": "1"},
		Headers:               map[string]string{"Content-Type": "application/json"},
		Body:                  `{"data":[]}`,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if resp.Body != `{"data":[]}` {
		t.Errorf("body = %q", resp.Body)
	}
	if resp.Headers["X-Path"] != "/analyze" || resp.Headers["X-Query"] != "1" || resp.Headers["X-Method"] != "POST" {
		t.Errorf("headers = %v", resp.Headers)
	}
}

func TestProxyHandlerDecodesBase64(t *testing.T) {
	handler := NewProxyHandler(echoHandler())

	resp, err := handler(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Path:            "/analyze",
		Body:            base64.StdEncoding.EncodeToString([]byte("hello")),
		IsBase64Encoded: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Body != "hello" {
		t.Fatalf("body = %q", resp.Body)
	}
}

func TestProxyHandlerRejectsBadBase64(t *testing.T) {
	handler := NewProxyHandler(echoHandler())

	resp, err := handler(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Path:            "/analyze",
		Body:            "%%%",
		IsBase64Encoded: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestProxyHandlerDefaultsStatus(t *testing.T) {
	handler := NewProxyHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	resp, err := handler(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/health"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
