package discover

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"
)

func serverPort(t *testing.T, ts *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse test server port: %v", err)
	}
	return port
}

func newTestProber() *Prober {
	return NewProber("assistant-language-server", 2*time.Second, zap.NewNop())
}

func TestProbe_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"service":"assistant-language-server"}`)
	}))
	defer ts.Close()

	port := serverPort(t, ts)
	conn, err := newTestProber().Probe(context.Background(), port, "tok")
	if err != nil {
		t.Fatalf("unexpected probe error: %v", err)
	}
	if conn.ConnectPort != port {
		t.Errorf("expected connect port %d, got %d", port, conn.ConnectPort)
	}
	if conn.CSRFToken != "tok" {
		t.Errorf("expected token preserved, got %q", conn.CSRFToken)
	}
}

func TestProbe_SendsCSRFHeader(t *testing.T) {
	var gotToken string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Csrf-Token")
		fmt.Fprint(w, `{"service":"assistant-language-server"}`)
	}))
	defer ts.Close()

	if _, err := newTestProber().Probe(context.Background(), serverPort(t, ts), "sekrit"); err != nil {
		t.Fatalf("unexpected probe error: %v", err)
	}
	if gotToken != "sekrit" {
		t.Errorf("expected X-Csrf-Token header, got %q", gotToken)
	}
}

func TestProbe_PortNegotiation(t *testing.T) {
	// Real API server on its own port.
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"service":"assistant-language-server"}`)
	}))
	defer api.Close()
	apiPort := serverPort(t, api)

	// Front door advertises the API port.
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"service":"assistant-language-server","apiPort":%d}`, apiPort)
	}))
	defer front.Close()

	conn, err := newTestProber().Probe(context.Background(), serverPort(t, front), "tok")
	if err != nil {
		t.Fatalf("unexpected probe error: %v", err)
	}
	if conn.ConnectPort != apiPort {
		t.Errorf("resolved port must be the advertised API port %d, got %d", apiPort, conn.ConnectPort)
	}
}

func TestProbe_WrongService(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"service":"somebody-else"}`)
	}))
	defer ts.Close()

	_, err := newTestProber().Probe(context.Background(), serverPort(t, ts), "")
	if err == nil {
		t.Fatal("expected probe error for wrong service")
	}
	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("expected *ProbeError, got %T", err)
	}
}

func TestProbe_Non200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer ts.Close()

	if _, err := newTestProber().Probe(context.Background(), serverPort(t, ts), "bad"); err == nil {
		t.Fatal("expected probe error for 401 response")
	}
}

func TestProbe_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>not json</html>`)
	}))
	defer ts.Close()

	if _, err := newTestProber().Probe(context.Background(), serverPort(t, ts), ""); err == nil {
		t.Fatal("expected probe error for non-JSON body")
	}
}

func TestProbe_Unreachable(t *testing.T) {
	// Grab a port and close it so nothing is listening.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	port := serverPort(t, ts)
	ts.Close()

	_, err := newTestProber().Probe(context.Background(), port, "tok")
	if err == nil {
		t.Fatal("expected probe error for closed port")
	}
	var probeErr *ProbeError
	if !errors.As(err, &probeErr) {
		t.Fatalf("expected *ProbeError, got %T", err)
	}
	if probeErr.Port != port {
		t.Errorf("error should carry the probed port %d, got %d", port, probeErr.Port)
	}
}
