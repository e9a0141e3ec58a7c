package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/tailview/internal/httpserver"
	"github.com/tinytelemetry/tailview/internal/model"
	"github.com/tinytelemetry/tailview/internal/socketrpc"
	"github.com/tinytelemetry/tailview/internal/tail"
	"github.com/tinytelemetry/tailview/internal/tracker"
	"github.com/tinytelemetry/tailview/internal/watch"
)

type e2eStack struct {
	tracker *tracker.Tracker
	web     *httpserver.Server
	socket  *socketrpc.Server
	mux     *SourceMultiplexer
	sock    string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// startE2EStack wires the same pieces runServer does, with a fast poll
// interval so the test does not depend on file system notifications.
func startE2EStack(t *testing.T, dir string) *e2eStack {
	t.Helper()

	pattern, err := watch.ParsePattern(filepath.Join(dir, "*.log"))
	if err != nil {
		t.Fatalf("ParsePattern: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &e2eStack{
		tracker: tracker.New(tracker.Config{Capacity: 100, Expire: time.Minute}),
		sock:    filepath.Join(t.TempDir(), "tailview.sock"),
		cancel:  cancel,
	}
	s.web = httpserver.NewServer("127.0.0.1:0", s.tracker)
	if err := s.web.Start(); err != nil {
		t.Fatalf("start web server: %v", err)
	}
	s.socket = socketrpc.NewServer(s.sock, s.tracker)
	if err := s.socket.Start(); err != nil {
		t.Fatalf("start socket server: %v", err)
	}

	sources := buildSources(ctx, InputPluginConfig{
		Patterns:     []watch.Pattern{pattern},
		Poll:         true,
		PollInterval: 20 * time.Millisecond,
	})
	s.mux = NewSourceMultiplexer(ctx, sources, 0)
	s.mux.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		watch.Dispatch(ctx, s.mux.Notices(), s.tracker)
	}()

	t.Cleanup(s.stop)
	return s
}

func (s *e2eStack) stop() {
	s.cancel()
	s.mux.Stop()
	s.wg.Wait()
	s.socket.Stop()
	s.web.Stop()
	s.tracker.Stop()
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestE2E_AppendedLinesReachEveryReadSurface(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "app.log")
	if err := os.WriteFile(logPath, []byte("boot ok\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := startE2EStack(t, dir)

	eventually(t, "initial history", func() bool {
		events, ok := s.tracker.History(logPath)
		return ok && len(events) == 2
	})

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("request failed {\"status\":503}\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	eventually(t, "appended line", func() bool {
		events, _ := s.tracker.History(logPath)
		return len(events) == 3
	})

	client, err := socketrpc.Dial(s.sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	events, err := client.History(socketrpc.HistoryParams{Path: logPath, Filter: "| .status"})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 1 || len(events[0].HighlightSpans) != 1 || *events[0].HighlightSpans[0].Replacement != "503" {
		t.Fatalf("structured history = %+v", events)
	}

	resp, err := http.Get("http://" + s.web.Addr() + "/api/events?filter=failed&path=" + logPath)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Events []model.Event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 1 || !strings.HasPrefix(body.Events[0].Content, "request failed") {
		t.Fatalf("http events = %+v", body.Events)
	}
	if len(body.Events[0].EmbeddedJSON) != 1 {
		t.Fatalf("embedded JSON = %+v", body.Events[0].EmbeddedJSON)
	}
}

func TestE2E_RemovedFileKeepsHistoryUntilExpiry(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "gone.log")
	if err := os.WriteFile(logPath, []byte("last words\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := startE2EStack(t, dir)
	eventually(t, "file tracked", func() bool {
		events, ok := s.tracker.History(logPath)
		return ok && len(events) == 2
	})

	if err := os.Remove(logPath); err != nil {
		t.Fatalf("remove: %v", err)
	}
	eventually(t, "removal noticed", func() bool {
		files := s.tracker.Files()
		events, _ := s.tracker.History(logPath)
		return len(files) == 1 && files[0].Removed && len(events) == 3
	})

	events, _ := s.tracker.History(logPath)
	if events[1].Content != "last words" || events[2].Content != tail.MsgRemoved {
		t.Fatalf("history after removal = %+v", events)
	}
}

func TestE2E_ClientCommandsReadTheSocket(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "svc.log")
	if err := os.WriteFile(logPath, []byte("boot ok\nGET /health 200\nGET /login 500\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := startE2EStack(t, dir)
	eventually(t, "file tracked", func() bool {
		events, ok := s.tracker.History(logPath)
		return ok && len(events) == 4
	})

	var out, errOut strings.Builder
	code := runClient([]string{"history", "--socket-path", s.sock, "--advanced", "-f", "GET and not 200", logPath}, &out, &errOut)
	if code != 0 {
		t.Fatalf("history exit = %d, stderr %q", code, errOut.String())
	}
	if got := out.String(); got != "GET /login 500\n" {
		t.Fatalf("history output = %q, want %q", got, "GET /login 500\n")
	}

	out.Reset()
	if code := runClient([]string{"history", "--socket-path", s.sock, "-n", "2", logPath}, &out, &errOut); code != 0 {
		t.Fatalf("history -n exit = %d, stderr %q", code, errOut.String())
	}
	if got, want := out.String(), "GET /health 200\nGET /login 500\n"; got != want {
		t.Fatalf("history -n output = %q, want %q", got, want)
	}

	out.Reset()
	if code := runClient([]string{"files", "--socket-path", s.sock}, &out, &errOut); code != 0 {
		t.Fatalf("files exit = %d, stderr %q", code, errOut.String())
	}
	if got := out.String(); !strings.HasPrefix(got, logPath+"\t4 lines\t") {
		t.Fatalf("files output = %q", got)
	}

	out.Reset()
	if code := runClient([]string{"files", "--json", "--socket-path", s.sock}, &out, &errOut); code != 0 {
		t.Fatalf("files --json exit = %d", code)
	}
	var info model.FileInfo
	if err := json.Unmarshal([]byte(out.String()), &info); err != nil || info.Path != logPath {
		t.Fatalf("files --json = %q, err %v", out.String(), err)
	}
}

func TestClientCommandErrors(t *testing.T) {
	t.Parallel()
	sock := filepath.Join(t.TempDir(), "missing.sock")

	var out, errOut strings.Builder
	if code := runClient([]string{"files", "--socket-path", sock}, &out, &errOut); code != 1 {
		t.Fatalf("files without server exit = %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "is tailview running?") {
		t.Fatalf("stderr = %q", errOut.String())
	}
	if code := runClient([]string{"history", "--bogus"}, &out, &errOut); code != 2 {
		t.Fatalf("bad flag exit = %d, want 2", code)
	}
	if !isClientCommand([]string{"history"}) || isClientCommand([]string{"app.log"}) || isClientCommand(nil) {
		t.Fatal("isClientCommand misclassified arguments")
	}
}
