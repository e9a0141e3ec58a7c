package socketrpc

import (
	"encoding/json"
	"testing"

	"github.com/tinytelemetry/tailview/internal/model"
)

// stubAPI returns fixed values for dispatch unit testing.
type stubAPI struct{}

func (stubAPI) Files() []model.FileInfo {
	return []model.FileInfo{{Path: "/var/log/app.log", Lines: 3, Offset: 42}}
}

func (stubAPI) History(path string) ([]model.Event, bool) {
	if path != "/var/log/app.log" {
		return nil, false
	}
	return []model.Event{
		{ID: 1, Kind: model.KindLine, Content: "GET /health 200"},
		{ID: 2, Kind: model.KindLine, Content: "GET /login 500"},
		{ID: 3, Kind: model.KindLine, Content: "POST /login 500"},
	}, true
}

func newTestDispatcher() *Server {
	return &Server{api: stubAPI{}}
}

func decodeEvents(t *testing.T, resp Response) []model.Event {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error: %s", resp.Error.Message)
	}
	var events []model.Event
	if err := json.Unmarshal(resp.Result, &events); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return events
}

func TestDispatch_ListFiles(t *testing.T) {
	t.Parallel()
	resp := newTestDispatcher().dispatch(Request{JSONRPC: "2.0", ID: 1, Method: "ListFiles"})
	if resp.Error != nil {
		t.Fatalf("ListFiles error: %s", resp.Error.Message)
	}
	var files []model.FileInfo
	if err := json.Unmarshal(resp.Result, &files); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(files) != 1 || files[0].Lines != 3 {
		t.Fatalf("files = %+v", files)
	}
}

func TestDispatch_History(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	tests := []struct {
		name   string
		params string
		want   []uint64
	}{
		{"all", `{"Path":"/var/log/app.log"}`, []uint64{1, 2, 3}},
		{"plain", `{"Path":"/var/log/app.log","Filter":"500"}`, []uint64{2, 3}},
		{"case", `{"Path":"/var/log/app.log","Filter":"post","CaseInsensitive":true}`, []uint64{3}},
		{"advanced", `{"Path":"/var/log/app.log","Filter":"login and not POST","Advanced":true}`, []uint64{2}},
		{"regex", `{"Path":"/var/log/app.log","Filter":"/^GET/"}`, []uint64{1, 2}},
		{"limit", `{"Path":"/var/log/app.log","Limit":2}`, []uint64{2, 3}},
		{"none", `{"Path":"/var/log/app.log","Filter":"nothing"}`, []uint64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			events := decodeEvents(t, srv.dispatch(Request{
				JSONRPC: "2.0",
				ID:      7,
				Method:  "History",
				Params:  json.RawMessage(tt.params),
			}))
			if len(events) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(events), len(tt.want))
			}
			for i, id := range tt.want {
				if events[i].ID != id {
					t.Fatalf("event %d id = %d, want %d", i, events[i].ID, id)
				}
			}
		})
	}
}

func TestDispatch_HistoryHighlights(t *testing.T) {
	t.Parallel()
	events := decodeEvents(t, newTestDispatcher().dispatch(Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "History",
		Params:  json.RawMessage(`{"Path":"/var/log/app.log","Filter":"login"}`),
	}))
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	spans := events[0].HighlightSpans
	if len(spans) != 1 || spans[0].Start != 5 || spans[0].End != 10 {
		t.Fatalf("spans = %+v, want [5,10)", spans)
	}
}

func TestDispatch_Errors(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	tests := []struct {
		name   string
		method string
		params string
		code   int
	}{
		{"method not found", "NonExistentMethod", `{}`, -32601},
		{"malformed params", "History", `not json`, -32602},
		{"missing path", "History", `{}`, -32602},
		{"invalid filter", "History", `{"Path":"/var/log/app.log","Filter":"a and","Advanced":true}`, -32602},
		{"unknown path", "History", `{"Path":"/nope"}`, -32000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := srv.dispatch(Request{
				JSONRPC: "2.0",
				ID:      1,
				Method:  tt.method,
				Params:  json.RawMessage(tt.params),
			})
			if resp.Error == nil {
				t.Fatal("expected error")
			}
			if resp.Error.Code != tt.code {
				t.Errorf("error code = %d, want %d", resp.Error.Code, tt.code)
			}
		})
	}
}

func TestDispatch_PreservesRequestID(t *testing.T) {
	t.Parallel()
	srv := newTestDispatcher()

	for _, id := range []int{0, 1, 42, 9999} {
		resp := srv.dispatch(Request{
			JSONRPC: "2.0",
			ID:      id,
			Method:  "ListFiles",
			Params:  json.RawMessage(`{}`),
		})
		if resp.ID != id {
			t.Errorf("request ID %d: response ID = %d", id, resp.ID)
		}
	}
}
