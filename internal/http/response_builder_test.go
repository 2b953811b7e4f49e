package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSONResponseBuilder(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Test", "1").
		Body(StatusBody{Status: "success"}).
		Write(rr)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("content type = %q", got)
	}
	if rr.Header().Get("X-Test") != "1" {
		t.Error("custom header missing")
	}
	if got := rr.Body.String(); got != "{\"status\":\"success\"}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		builder *JSONResponseBuilder
		status  int
	}{
		{BadRequestError("x"), http.StatusBadRequest},
		{NotFoundError("x"), http.StatusNotFound},
		{InternalServerError("x"), http.StatusInternalServerError},
		{BadGatewayError("x"), http.StatusBadGateway},
		{TooManyRequestsError("x"), http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		tt.builder.Write(rr)
		if rr.Code != tt.status {
			t.Errorf("status = %d, want %d", rr.Code, tt.status)
		}
		if rr.Body.String() != "{\"error\":\"x\"}\n" {
			t.Errorf("body = %q", rr.Body.String())
		}
	}
}

func TestEmptyBody(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(rr)
	if rr.Code != http.StatusNoContent || rr.Body.Len() != 0 {
		t.Fatalf("unexpected response %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "" {
		t.Error("no content type expected without a body")
	}
}
