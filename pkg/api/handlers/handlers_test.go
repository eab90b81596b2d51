package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"forkchat/pkg/api"
	"forkchat/pkg/api/handlers"
	"forkchat/pkg/config"
	"forkchat/pkg/llm"
	"forkchat/pkg/models"
	"forkchat/pkg/persist"
	"forkchat/pkg/store"
)

// fakeStreamer scripts the model gateway: either a fixed sequence of deltas
// or an error.
type fakeStreamer struct {
	deltas []string
	err    error
	got    []llm.ChatMessage
}

func (f *fakeStreamer) Stream(ctx context.Context, msgs []llm.ChatMessage, p llm.Params, emit func(string) error) error {
	f.got = msgs
	if f.err != nil {
		return f.err
	}
	for _, d := range f.deltas {
		if err := emit(d); err != nil {
			return err
		}
	}
	return nil
}

type env struct {
	srv   *httptest.Server
	store *store.Store
	gw    *persist.Gateway
	model *fakeStreamer
	main  string
}

func setup(t *testing.T) *env {
	t.Helper()
	gw, err := persist.Open(t.TempDir(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("open gateway: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })

	st := store.New(models.DefaultSettings())
	main := st.Bootstrap("Main Thread")
	gw.SetSource(st.Snapshot)

	model := &fakeStreamer{deltas: []string{"Hello", " there"}}
	h := &handlers.Handlers{Store: st, Persist: gw, Model: model}
	srv := httptest.NewServer(api.New(h, &config.Config{}))
	t.Cleanup(srv.Close)
	return &env{srv: srv, store: st, gw: gw, model: model, main: main}
}

func (e *env) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, e.srv.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	var out map[string]interface{}
	_ = json.NewDecoder(res.Body).Decode(&out)
	res.Body.Close()
	return res, out
}

func TestHealthz(t *testing.T) {
	e := setup(t)
	res, out := e.do(t, "GET", "/healthz", nil)
	if res.StatusCode != 200 || out["status"] != "ok" {
		t.Fatalf("healthz failed: %v %v", res.Status, out)
	}
}

func TestThread_CRUD(t *testing.T) {
	e := setup(t)

	res, out := e.do(t, "POST", "/v1/threads", map[string]interface{}{"name": "research", "description": "notes"})
	if res.StatusCode != 201 {
		t.Fatalf("create failed: %v", res.Status)
	}
	tid := out["id"].(string)

	res, out = e.do(t, "GET", "/v1/threads/"+tid, nil)
	if res.StatusCode != 200 || out["name"] != "research" {
		t.Fatalf("get failed: %v %v", res.Status, out)
	}

	res, out = e.do(t, "PUT", "/v1/threads/"+tid, map[string]interface{}{"name": "renamed", "isVisible": false})
	if res.StatusCode != 200 || out["name"] != "renamed" {
		t.Fatalf("update failed: %v %v", res.Status, out)
	}
	if out["isVisible"] != false {
		t.Fatalf("visibility not updated: %v", out)
	}

	res, _ = e.do(t, "DELETE", "/v1/threads/"+tid, nil)
	if res.StatusCode != 200 {
		t.Fatalf("delete failed: %v", res.Status)
	}
	res, _ = e.do(t, "GET", "/v1/threads/"+tid, nil)
	if res.StatusCode != 404 {
		t.Fatalf("expected 404 after delete, got %v", res.Status)
	}
}

func TestThread_CreateValidation(t *testing.T) {
	e := setup(t)
	res, _ := e.do(t, "POST", "/v1/threads", map[string]interface{}{})
	if res.StatusCode != 400 {
		t.Fatalf("empty body should be rejected: %v", res.Status)
	}
	res, _ = e.do(t, "POST", "/v1/threads", map[string]interface{}{"name": "x", "parentThreadId": "th_missing"})
	if res.StatusCode != 404 {
		t.Fatalf("unknown parent should 404: %v", res.Status)
	}
}

func TestThread_DeleteMainRefused(t *testing.T) {
	e := setup(t)
	res, _ := e.do(t, "DELETE", "/v1/threads/"+e.main, nil)
	if res.StatusCode != 409 {
		t.Fatalf("deleting main should 409, got %v", res.Status)
	}
}

func TestThread_SeedCreateAndList(t *testing.T) {
	e := setup(t)
	res, out := e.do(t, "POST", "/v1/threads", map[string]interface{}{"seedText": "what about generics?"})
	if res.StatusCode != 201 {
		t.Fatalf("seed create failed: %v", res.Status)
	}
	if ids := out["messageIds"].([]interface{}); len(ids) != 1 {
		t.Fatalf("seed message missing: %v", out)
	}

	res, out = e.do(t, "GET", "/v1/threads", nil)
	if res.StatusCode != 200 {
		t.Fatalf("list failed: %v", res.Status)
	}
	if len(out["threads"].([]interface{})) != 2 {
		t.Fatalf("expected 2 threads: %v", out)
	}
}

func TestMessage_Lifecycle(t *testing.T) {
	e := setup(t)

	res, out := e.do(t, "POST", "/v1/threads/"+e.main+"/messages", map[string]interface{}{"content": "hi"})
	if res.StatusCode != 201 {
		t.Fatalf("create failed: %v", res.Status)
	}
	mid := out["id"].(string)
	if out["role"] != "user" {
		t.Fatalf("role should default to user: %v", out)
	}

	res, out = e.do(t, "PUT", "/v1/messages/"+mid, map[string]interface{}{"content": "hi edited"})
	if res.StatusCode != 200 || out["content"] != "hi edited" || out["isEdited"] != true {
		t.Fatalf("edit failed: %v %v", res.Status, out)
	}

	res, _ = e.do(t, "DELETE", "/v1/messages/"+mid, nil)
	if res.StatusCode != 200 {
		t.Fatalf("delete failed: %v", res.Status)
	}
	res, _ = e.do(t, "GET", "/v1/messages/"+mid, nil)
	if res.StatusCode != 404 {
		t.Fatalf("expected 404 after delete: %v", res.Status)
	}
}

func TestMessage_Validation(t *testing.T) {
	e := setup(t)
	res, _ := e.do(t, "POST", "/v1/threads/"+e.main+"/messages", map[string]interface{}{"content": ""})
	if res.StatusCode != 400 {
		t.Fatalf("empty content should 400: %v", res.Status)
	}
	res, _ = e.do(t, "POST", "/v1/threads/"+e.main+"/messages", map[string]interface{}{"content": "x", "role": "system"})
	if res.StatusCode != 400 {
		t.Fatalf("bad role should 400: %v", res.Status)
	}
	res, _ = e.do(t, "POST", "/v1/threads/th_missing/messages", map[string]interface{}{"content": "x"})
	if res.StatusCode != 404 {
		t.Fatalf("unknown thread should 404: %v", res.Status)
	}
}

func TestMessage_Fork(t *testing.T) {
	e := setup(t)
	_, out := e.do(t, "POST", "/v1/threads/"+e.main+"/messages", map[string]interface{}{"content": "fork me"})
	mid := out["id"].(string)

	res, out := e.do(t, "POST", "/v1/messages/"+mid+"/fork", map[string]interface{}{"name": "tangent"})
	if res.StatusCode != 201 {
		t.Fatalf("fork failed: %v", res.Status)
	}
	if out["parentThreadId"] != e.main || out["rootMessageId"] != mid {
		t.Fatalf("fork edges wrong: %v", out)
	}

	// empty body is fine too
	req, _ := http.NewRequest("POST", e.srv.URL+"/v1/messages/"+mid+"/fork", nil)
	res2, err := http.DefaultClient.Do(req)
	if err != nil || res2.StatusCode != 201 {
		t.Fatalf("bodyless fork failed: %v %v", err, res2.Status)
	}
	res2.Body.Close()
}

func TestContext_ResolveAndCuration(t *testing.T) {
	e := setup(t)
	_, m1 := e.do(t, "POST", "/v1/threads/"+e.main+"/messages", map[string]interface{}{"content": "main msg"})
	mid := m1["id"].(string)

	_, side := e.do(t, "POST", "/v1/threads", map[string]interface{}{"name": "side"})
	sid := side["id"].(string)
	e.do(t, "POST", "/v1/threads/"+sid+"/messages", map[string]interface{}{"content": "side msg"})

	// side thread starts with only its own message
	res, out := e.do(t, "GET", "/v1/threads/"+sid+"/context", nil)
	if res.StatusCode != 200 || int(out["count"].(float64)) != 1 {
		t.Fatalf("initial context wrong: %v %v", res.Status, out)
	}

	// pull the whole main thread in
	res, _ = e.do(t, "POST", "/v1/threads/"+sid+"/context/threads", map[string]interface{}{"threadId": e.main})
	if res.StatusCode != 200 {
		t.Fatalf("add context thread failed: %v", res.Status)
	}
	_, out = e.do(t, "GET", "/v1/threads/"+sid+"/context", nil)
	if int(out["count"].(float64)) != 2 {
		t.Fatalf("context thread not applied: %v", out)
	}

	// exclusion wins over membership
	res, _ = e.do(t, "POST", "/v1/threads/"+sid+"/context/excluded", map[string]interface{}{"messageId": mid})
	if res.StatusCode != 200 {
		t.Fatalf("exclude failed: %v", res.Status)
	}
	_, out = e.do(t, "GET", "/v1/threads/"+sid+"/context", nil)
	if int(out["count"].(float64)) != 1 {
		t.Fatalf("exclusion not applied: %v", out)
	}

	// lifting the exclusion restores it
	res, _ = e.do(t, "DELETE", "/v1/threads/"+sid+"/context/excluded/"+mid, nil)
	if res.StatusCode != 200 {
		t.Fatalf("include failed: %v", res.Status)
	}
	_, out = e.do(t, "GET", "/v1/threads/"+sid+"/context", nil)
	if int(out["count"].(float64)) != 2 {
		t.Fatalf("inclusion not applied: %v", out)
	}

	// drop the thread membership, pin the single message instead
	res, _ = e.do(t, "DELETE", "/v1/threads/"+sid+"/context/threads/"+e.main, nil)
	if res.StatusCode != 200 {
		t.Fatalf("remove context thread failed: %v", res.Status)
	}
	res, _ = e.do(t, "POST", "/v1/threads/"+sid+"/context/messages", map[string]interface{}{"messageId": mid})
	if res.StatusCode != 200 {
		t.Fatalf("pin failed: %v", res.Status)
	}
	_, out = e.do(t, "GET", "/v1/threads/"+sid+"/context", nil)
	if int(out["count"].(float64)) != 2 {
		t.Fatalf("pin not applied: %v", out)
	}
	res, _ = e.do(t, "DELETE", "/v1/threads/"+sid+"/context/messages/"+mid, nil)
	if res.StatusCode != 200 {
		t.Fatalf("unpin failed: %v", res.Status)
	}
}

func TestContext_SelfReferenceRejected(t *testing.T) {
	e := setup(t)
	res, _ := e.do(t, "POST", "/v1/threads/"+e.main+"/context/threads", map[string]interface{}{"threadId": e.main})
	if res.StatusCode != 409 {
		t.Fatalf("self reference should 409: %v", res.Status)
	}
}

func TestHierarchy_Endpoint(t *testing.T) {
	e := setup(t)
	_, child := e.do(t, "POST", "/v1/threads", map[string]interface{}{"name": "child", "parentThreadId": e.main})
	cid := child["id"].(string)

	res, out := e.do(t, "GET", "/v1/threads/"+cid+"/hierarchy", nil)
	if res.StatusCode != 200 {
		t.Fatalf("hierarchy failed: %v", res.Status)
	}
	if out["rootId"] != e.main {
		t.Fatalf("wrong root: %v", out)
	}
}

func readChatEvents(t *testing.T, res *http.Response) []map[string]interface{} {
	t.Helper()
	defer res.Body.Close()
	var events []map[string]interface{}
	dec := json.NewDecoder(res.Body)
	for {
		var ev map[string]interface{}
		if err := dec.Decode(&ev); err != nil {
			break
		}
		events = append(events, ev)
	}
	return events
}

func TestChat_StreamsAndPersists(t *testing.T) {
	e := setup(t)
	b, _ := json.Marshal(map[string]string{"content": "hello model"})
	res, err := http.Post(e.srv.URL+"/v1/threads/"+e.main+"/chat", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("wrong content type: %s", ct)
	}
	events := readChatEvents(t, res)
	if len(events) != 3 {
		t.Fatalf("expected 2 deltas + done, got %v", events)
	}
	last := events[len(events)-1]
	if last["done"] != true || last["messageId"] == nil {
		t.Fatalf("terminal event malformed: %v", last)
	}

	msgs, err := e.store.ThreadMessages(e.main)
	if err != nil {
		t.Fatalf("thread messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("user+assistant turns not persisted: %d", len(msgs))
	}
	if msgs[1].Role != models.RoleAssistant || msgs[1].Content != "Hello there" {
		t.Fatalf("assistant turn wrong: %+v", msgs[1])
	}
	// the user turn was part of the context sent upstream
	found := false
	for _, m := range e.model.got {
		if m.Content == "hello model" {
			found = true
		}
	}
	if !found {
		t.Fatalf("user turn missing from upstream context: %+v", e.model.got)
	}
}

func TestChat_UpstreamFailureBecomesAssistantTurn(t *testing.T) {
	e := setup(t)
	e.model.err = &llm.UpstreamError{Status: 429, StatusText: "429 Too Many Requests", Body: "slow down"}

	b, _ := json.Marshal(map[string]string{"content": "hi"})
	res, err := http.Post(e.srv.URL+"/v1/threads/"+e.main+"/chat", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	events := readChatEvents(t, res)
	last := events[len(events)-1]
	if last["error"] == nil || last["done"] != true {
		t.Fatalf("error event malformed: %v", last)
	}

	msgs, _ := e.store.ThreadMessages(e.main)
	if len(msgs) != 2 {
		t.Fatalf("failure should still persist an assistant turn: %d", len(msgs))
	}
	if msgs[1].Role != models.RoleAssistant || !strings.HasPrefix(msgs[1].Content, "Error: ") {
		t.Fatalf("assistant error turn wrong: %+v", msgs[1])
	}
}

func TestChat_Validation(t *testing.T) {
	e := setup(t)
	b, _ := json.Marshal(map[string]string{"content": "   "})
	res, _ := http.Post(e.srv.URL+"/v1/threads/"+e.main+"/chat", "application/json", bytes.NewReader(b))
	res.Body.Close()
	if res.StatusCode != 400 {
		t.Fatalf("blank content should 400: %v", res.Status)
	}

	b, _ = json.Marshal(map[string]string{"content": "hi"})
	res, _ = http.Post(e.srv.URL+"/v1/threads/th_missing/chat", "application/json", bytes.NewReader(b))
	res.Body.Close()
	if res.StatusCode != 404 {
		t.Fatalf("unknown thread should 404: %v", res.Status)
	}
}

func TestChat_NoModelConfigured(t *testing.T) {
	gw, err := persist.Open(t.TempDir(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("open gateway: %v", err)
	}
	defer gw.Close()
	st := store.New(models.DefaultSettings())
	main := st.Bootstrap("Main Thread")
	gw.SetSource(st.Snapshot)
	h := &handlers.Handlers{Store: st, Persist: gw, Model: nil}
	srv := httptest.NewServer(api.New(h, &config.Config{}))
	defer srv.Close()

	b, _ := json.Marshal(map[string]string{"content": "hi"})
	res, _ := http.Post(srv.URL+"/v1/threads/"+main+"/chat", "application/json", bytes.NewReader(b))
	res.Body.Close()
	if res.StatusCode != 503 {
		t.Fatalf("missing model should 503: %v", res.Status)
	}
}

func TestSettings_GetAndUpdate(t *testing.T) {
	e := setup(t)
	res, out := e.do(t, "GET", "/v1/settings", nil)
	if res.StatusCode != 200 || out["temperature"].(float64) != 0.3 {
		t.Fatalf("defaults wrong: %v %v", res.Status, out)
	}

	res, out = e.do(t, "PUT", "/v1/settings", map[string]interface{}{
		"temperature":        0.9,
		"maxTokens":          4000,
		"maxContextMessages": 50,
		"showThinkingMode":   true,
	})
	if res.StatusCode != 200 {
		t.Fatalf("update failed: %v", res.Status)
	}
	if out["temperature"].(float64) != 0.9 || out["showThinkingMode"] != true {
		t.Fatalf("settings not applied: %v", out)
	}

	for _, bad := range []map[string]interface{}{
		{"temperature": 3.0, "maxTokens": 100},
		{"temperature": 0.5, "maxTokens": 0},
		{"temperature": 0.5, "maxTokens": 100, "maxContextMessages": -1},
	} {
		res, _ = e.do(t, "PUT", "/v1/settings", bad)
		if res.StatusCode != 400 {
			t.Fatalf("invalid settings %v should 400: %v", bad, res.Status)
		}
	}
}

func TestExportImportClear_Flow(t *testing.T) {
	e := setup(t)
	_, m := e.do(t, "POST", "/v1/threads/"+e.main+"/messages", map[string]interface{}{"content": "keep me"})
	mid := m["id"].(string)

	res, err := http.Get(e.srv.URL + "/v1/export")
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if cd := res.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Fatalf("export should be a download: %q", cd)
	}
	exported := new(bytes.Buffer)
	_, _ = exported.ReadFrom(res.Body)
	res.Body.Close()

	// wipe everything
	res2, out := e.do(t, "POST", "/v1/clear", nil)
	if res2.StatusCode != 200 || out["mainThreadId"] == "" {
		t.Fatalf("clear failed: %v %v", res2.Status, out)
	}
	if _, err := e.store.Message(mid); err == nil {
		t.Fatalf("clear should drop messages")
	}

	// restore from the export
	res3, err := http.Post(e.srv.URL+"/v1/import", "application/json", exported)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	var imp map[string]interface{}
	_ = json.NewDecoder(res3.Body).Decode(&imp)
	res3.Body.Close()
	if res3.StatusCode != 200 {
		t.Fatalf("import status: %v %v", res3.Status, imp)
	}
	got, err := e.store.Message(mid)
	if err != nil || got.Content != "keep me" {
		t.Fatalf("import did not restore state: %v %+v", err, got)
	}
}

func TestImport_InvalidPayloadLeavesStateIntact(t *testing.T) {
	e := setup(t)
	_, m := e.do(t, "POST", "/v1/threads/"+e.main+"/messages", map[string]interface{}{"content": "survivor"})
	mid := m["id"].(string)

	res, err := http.Post(e.srv.URL+"/v1/import", "application/json", strings.NewReader(`{"threads":{}}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != 400 {
		t.Fatalf("invalid import should 400: %v", res.Status)
	}
	if _, err := e.store.Message(mid); err != nil {
		t.Fatalf("state lost on failed import: %v", err)
	}
}
