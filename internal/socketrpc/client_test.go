package socketrpc_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/tailview/internal/model"
	"github.com/tinytelemetry/tailview/internal/socketrpc"
)

// mockAPI is a minimal ReadAPI for roundtrip testing.
type mockAPI struct{}

func (mockAPI) Files() []model.FileInfo {
	return []model.FileInfo{
		{Path: "/logs/a.log", Lines: 2, Offset: 20},
		{Path: "/logs/b.log", Lines: 0, Removed: true},
	}
}

func (mockAPI) History(path string) ([]model.Event, bool) {
	if path != "/logs/a.log" {
		return nil, false
	}
	return []model.Event{
		{ID: 10, Kind: model.KindSystem, Content: "Started tracking file"},
		{ID: 11, Kind: model.KindLine, Content: `status {"code":500}`, EmbeddedJSON: []model.JSONMatch{
			{Start: 7, End: 19, Value: map[string]any{"code": float64(500)}},
		}},
	}, true
}

func startTestServer(t *testing.T) (string, *socketrpc.Server) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	srv := socketrpc.NewServer(sockPath, mockAPI{})
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return sockPath, srv
}

func TestRoundtrip(t *testing.T) {
	sockPath, srv := startTestServer(t)
	defer srv.Stop()

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	t.Run("ListFiles", func(t *testing.T) {
		files, err := client.ListFiles()
		if err != nil {
			t.Fatal(err)
		}
		if len(files) != 2 || files[0].Path != "/logs/a.log" || !files[1].Removed {
			t.Fatalf("unexpected files: %+v", files)
		}
	})

	t.Run("History", func(t *testing.T) {
		events, err := client.History(socketrpc.HistoryParams{Path: "/logs/a.log"})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 || events[0].Kind != model.KindSystem {
			t.Fatalf("unexpected events: %+v", events)
		}
		if len(events[1].EmbeddedJSON) != 1 || events[1].EmbeddedJSON[0].Start != 7 {
			t.Fatalf("embedded JSON lost in transit: %+v", events[1].EmbeddedJSON)
		}
	})

	t.Run("StructuredFilter", func(t *testing.T) {
		events, err := client.History(socketrpc.HistoryParams{Path: "/logs/a.log", Filter: "| .code"})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 || events[0].ID != 11 {
			t.Fatalf("unexpected events: %+v", events)
		}
		spans := events[0].HighlightSpans
		if len(spans) != 1 || spans[0].Replacement == nil || *spans[0].Replacement != "500" {
			t.Fatalf("unexpected spans: %+v", spans)
		}
	})

	t.Run("UnknownPath", func(t *testing.T) {
		_, err := client.History(socketrpc.HistoryParams{Path: "/logs/missing.log"})
		var rpcErr *socketrpc.RPCError
		if !errors.As(err, &rpcErr) || rpcErr.Code != -32000 {
			t.Fatalf("err = %v, want RPC error -32000", err)
		}
	})

	t.Run("MethodNotFound", func(t *testing.T) {
		err := client.Call("Nope", nil, nil)
		var rpcErr *socketrpc.RPCError
		if !errors.As(err, &rpcErr) || rpcErr.Code != -32601 {
			t.Fatalf("err = %v, want RPC error -32601", err)
		}
	})
}

func TestDialFailure(t *testing.T) {
	_, err := socketrpc.Dial(filepath.Join(t.TempDir(), "nonexistent.sock"))
	if err == nil {
		t.Fatal("expected error dialing nonexistent socket")
	}
}

func TestSecondServerRefused(t *testing.T) {
	sockPath, srv := startTestServer(t)
	defer srv.Stop()

	other := socketrpc.NewServer(sockPath, mockAPI{})
	if err := other.Start(); err == nil {
		other.Stop()
		t.Fatal("expected second server on the same socket to fail")
	}
}

func TestServerStopCleansSocket(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "cleanup.sock")
	srv := socketrpc.NewServer(sockPath, mockAPI{})
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	srv.Stop()

	if _, err := socketrpc.Dial(sockPath); err == nil {
		t.Fatal("expected dial to fail after server stop")
	}
}

func TestStopIdempotent(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "idempotent.sock")
	srv := socketrpc.NewServer(sockPath, mockAPI{})
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	srv.Stop()
	srv.Stop()
}

func TestStopClosesConns(t *testing.T) {
	sockPath, srv := startTestServer(t)
	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	srv.Stop()

	done := make(chan error, 1)
	go func() {
		_, callErr := client.ListFiles()
		done <- callErr
	}()

	select {
	case callErr := <-done:
		if callErr == nil {
			t.Fatal("expected client call to fail after server stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client call hung after server stop")
	}
}
