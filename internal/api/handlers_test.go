package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"techroute/internal/config"
	"techroute/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.RateRPS = 0
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// lineInstance: depot at x=50, technicians at both ends, three requests.
func lineInstance() model.InstanceIn {
	return model.InstanceIn{
		Name:  "line",
		Depot: model.DepotIn{Location: model.Location{X: 50}},
		Technicians: []model.TechnicianIn{
			{ID: "west", Home: model.Location{X: 0}},
			{ID: "east", Home: model.Location{X: 100}},
		},
		Requests: []model.RequestIn{
			{ID: "a", Location: model.Location{X: 10}, TimeWindow: &model.TimeWindow{Start: 0, End: 100}},
			{ID: "b", Location: model.Location{X: 90}},
			{ID: "c", Location: model.Location{X: 20}},
		},
	}
}

func createInstance(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/v1/instances", lineInstance())
	if rr.Code != http.StatusCreated {
		t.Fatalf("create instance: got %d %s", rr.Code, rr.Body.String())
	}
	var out model.InstanceOut
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID == "" || out.Requests != 3 || out.Technicians != 2 {
		t.Fatalf("unexpected instance summary %+v", out)
	}
	return out.ID
}

// splitAB solves with the giant tour [a b], leaving c unserved.
func splitAB(t *testing.T, h http.Handler, instanceID string) model.SolutionOut {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/v1/solutions", model.SolveRequest{
		InstanceID: instanceID, Algorithm: "split", GiantTour: []string{"a", "b"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("solve: got %d %s", rr.Code, rr.Body.String())
	}
	var sol model.SolutionOut
	if err := json.Unmarshal(rr.Body.Bytes(), &sol); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return sol
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestInstancesCreateGetList(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	id := createInstance(t, h)

	rr := do(t, h, http.MethodGet, "/v1/instances/"+id, nil)
	if rr.Code != 200 {
		t.Fatalf("get instance: %d", rr.Code)
	}
	var got struct {
		Instance model.InstanceIn `json:"instance"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &got)
	if len(got.Instance.Requests) != 3 {
		t.Fatalf("instance body not returned: %s", rr.Body.String())
	}
	if rr := do(t, h, http.MethodGet, "/v1/instances/missing", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("missing instance: want 404, got %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/v1/instances?limit=5", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), id) {
		t.Fatalf("list instances: %d %s", rr.Code, rr.Body.String())
	}
}

func TestInstanceRejected(t *testing.T) {
	h := newTestServer(t).Routes()
	bad := lineInstance()
	bad.Technicians = nil
	if rr := do(t, h, http.MethodPost, "/v1/instances", bad); rr.Code != http.StatusBadRequest {
		t.Fatalf("no technicians: want 400, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/v1/instances", "{"); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad json: want 400, got %d", rr.Code)
	}
	var p Problem
	rr := do(t, h, http.MethodPost, "/v1/instances", "{")
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil || p.Status != 400 || p.Title != "Invalid JSON" {
		t.Fatalf("problem body: %v %+v", err, p)
	}
	if p.Type != "urn:techroute:problem:invalid-json" {
		t.Fatalf("problem type = %q", p.Type)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("problem content type = %q", ct)
	}
}

func TestSolveInsertion(t *testing.T) {
	h := newTestServer(t).Routes()
	id := createInstance(t, h)
	rr := do(t, h, http.MethodPost, "/v1/solutions", model.SolveRequest{InstanceID: id})
	if rr.Code != http.StatusCreated {
		t.Fatalf("solve: %d %s", rr.Code, rr.Body.String())
	}
	var sol model.SolutionOut
	_ = json.Unmarshal(rr.Body.Bytes(), &sol)
	if sol.ID == "" || sol.Algorithm != "insertion" || len(sol.Unserved) != 0 {
		t.Fatalf("unexpected solution %+v", sol)
	}
	// west takes a and c (0-10-20-0 = 40), east takes b (20)
	if sol.Cost < 59.999 || sol.Cost > 60.001 {
		t.Fatalf("cost = %v, want 60", sol.Cost)
	}
	if sol.Metrics.InsertionsEvaluated == 0 {
		t.Fatalf("metrics not recorded: %+v", sol.Metrics)
	}
	rr = do(t, h, http.MethodGet, "/v1/solutions?instanceId="+id, nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), sol.ID) {
		t.Fatalf("list solutions: %d %s", rr.Code, rr.Body.String())
	}
}

func TestSolveRejects(t *testing.T) {
	h := newTestServer(t).Routes()
	id := createInstance(t, h)
	cases := map[string]struct {
		req  model.SolveRequest
		want int
	}{
		"no instance":      {model.SolveRequest{}, http.StatusBadRequest},
		"unknown instance": {model.SolveRequest{InstanceID: "nope"}, http.StatusNotFound},
		"bad algorithm":    {model.SolveRequest{InstanceID: id, Algorithm: "alns"}, http.StatusBadRequest},
		"unknown request":  {model.SolveRequest{InstanceID: id, Algorithm: "split", GiantTour: []string{"zz"}}, http.StatusBadRequest},
		"repeated request": {model.SolveRequest{InstanceID: id, Algorithm: "split", GiantTour: []string{"a", "a"}}, http.StatusBadRequest},
		"unknown option":   {model.SolveRequest{InstanceID: id, Options: map[string]any{"turbo": 1}}, http.StatusBadRequest},
		"strict":           {model.SolveRequest{InstanceID: id, Options: map[string]any{"strict": true}}, http.StatusBadRequest},
		"bad objective":    {model.SolveRequest{InstanceID: id, Options: map[string]any{"objective": "fastest"}}, http.StatusBadRequest},
		"unknown tech":     {model.SolveRequest{InstanceID: id, Algorithm: "split", Technician: "north"}, http.StatusBadRequest},
	}
	for name, tc := range cases {
		if rr := do(t, h, http.MethodPost, "/v1/solutions", tc.req); rr.Code != tc.want {
			t.Fatalf("%s: want %d, got %d %s", name, tc.want, rr.Code, rr.Body.String())
		}
	}
}

func TestSplitPreview(t *testing.T) {
	h := newTestServer(t).Routes()
	id := createInstance(t, h)
	rr := do(t, h, http.MethodPost, "/v1/solutions", model.SolveRequest{
		InstanceID: id, Algorithm: "split", Technician: "west", GiantTour: []string{"a", "c"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("split preview: %d %s", rr.Code, rr.Body.String())
	}
	var out struct {
		Tours []model.TourOut `json:"tours"`
		Cost  float64         `json:"cost"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if len(out.Tours) != 1 || out.Cost < 39.999 || out.Cost > 40.001 {
		t.Fatalf("unexpected preview %s", rr.Body.String())
	}
}

func TestSolveOptionsOverride(t *testing.T) {
	h := newTestServer(t).Routes()
	id := createInstance(t, h)
	rr := do(t, h, http.MethodPost, "/v1/solutions", model.SolveRequest{
		InstanceID: id, Options: map[string]any{"objective": "workingTime", "twoOpt": "2"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("solve: %d %s", rr.Code, rr.Body.String())
	}
	var sol model.SolutionOut
	_ = json.Unmarshal(rr.Body.Bytes(), &sol)
	if sol.Objective != "workingTime" || sol.Options.TwoOpt != 2 {
		t.Fatalf("options not applied: %+v", sol.Options)
	}
}

func TestInsertIntoSolution(t *testing.T) {
	h := newTestServer(t).Routes()
	id := createInstance(t, h)
	sol := splitAB(t, h, id)
	if len(sol.Unserved) != 1 || sol.Unserved[0] != "c" {
		t.Fatalf("want c unserved, got %v", sol.Unserved)
	}
	if sol.Cost < 39.999 || sol.Cost > 40.001 {
		t.Fatalf("split cost = %v, want 40", sol.Cost)
	}

	rr := do(t, h, http.MethodPost, "/v1/solutions/"+sol.ID+"/insert", model.InsertRequest{Request: "c"})
	if rr.Code != http.StatusOK {
		t.Fatalf("insert: %d %s", rr.Code, rr.Body.String())
	}
	var res struct {
		Solution   model.SolutionOut `json:"solution"`
		Technician string            `json:"technician"`
		Delta      float64           `json:"delta"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &res)
	if res.Technician != "west" || res.Delta < 19.999 || res.Delta > 20.001 {
		t.Fatalf("unexpected insertion %s", rr.Body.String())
	}
	if len(res.Solution.Unserved) != 0 {
		t.Fatalf("c still unserved")
	}

	if rr := do(t, h, http.MethodPost, "/v1/solutions/"+sol.ID+"/insert", model.InsertRequest{Request: "c"}); rr.Code != http.StatusConflict {
		t.Fatalf("second insert: want 409, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/v1/solutions/"+sol.ID+"/insert", model.InsertRequest{Request: "zz"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown request: want 400, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/v1/solutions/missing/insert", model.InsertRequest{Request: "c"}); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown solution: want 404, got %d", rr.Code)
	}

	rr = do(t, h, http.MethodGet, "/v1/solutions/"+sol.ID, nil)
	var got model.SolutionOut
	_ = json.Unmarshal(rr.Body.Bytes(), &got)
	if rr.Code != 200 || got.Cost < 59.999 || got.Cost > 60.001 {
		t.Fatalf("stored solution: %d cost %v", rr.Code, got.Cost)
	}

	rr = do(t, h, http.MethodGet, "/v1/solutions/"+sol.ID+"/metrics", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"split"`) || !strings.Contains(rr.Body.String(), `"insert"`) {
		t.Fatalf("run metrics: %d %s", rr.Code, rr.Body.String())
	}
}

func TestInsertInfeasible(t *testing.T) {
	h := newTestServer(t).Routes()
	in := lineInstance()
	in.Requests = append(in.Requests, model.RequestIn{ID: "far", Location: model.Location{X: 500}, TimeWindow: &model.TimeWindow{Start: 0, End: 10}})
	rr := do(t, h, http.MethodPost, "/v1/instances", in)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	var inst model.InstanceOut
	_ = json.Unmarshal(rr.Body.Bytes(), &inst)
	sol := splitAB(t, h, inst.ID)
	if rr := do(t, h, http.MethodPost, "/v1/solutions/"+sol.ID+"/insert", model.InsertRequest{Request: "far"}); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Server.RateRPS = 0.001
	cfg.Server.RateBurst = 1
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	h := s.Routes()
	if rr := do(t, h, http.MethodGet, "/v1/instances", nil); rr.Code != 200 {
		t.Fatalf("first request: %d", rr.Code)
	}
	rr := do(t, h, http.MethodGet, "/v1/instances", nil)
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second request: want 429, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/healthz", nil); rr.Code != 200 {
		t.Fatalf("healthz must bypass the limiter, got %d", rr.Code)
	}
}

func TestOpsEndpoints(t *testing.T) {
	h := newTestServer(t).Routes()
	_ = do(t, h, http.MethodGet, "/v1/instances", nil)
	rr := do(t, h, http.MethodGet, "/metrics", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "http_requests_total") {
		t.Fatalf("metrics: %d", rr.Code)
	}
	rr = do(t, h, http.MethodGet, "/debug/info", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), `"build"`) {
		t.Fatalf("debug: %d %s", rr.Code, rr.Body.String())
	}
}

func TestRouteLabel(t *testing.T) {
	for in, want := range map[string]string{
		"/v1/solutions/abc/insert": "/v1/solutions/{id}/insert",
		"/v1/solutions/abc":        "/v1/solutions/{id}",
		"/v1/instances/xyz":        "/v1/instances/{id}",
		"/v1/solutions":            "/v1/solutions",
		"/healthz":                 "/healthz",
	} {
		if got := routeLabel(in); got != want {
			t.Fatalf("routeLabel(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestSolutionEventsWS(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Routes())
	defer ts.Close()
	id := createInstance(t, ts.Config.Handler)
	sol := splitAB(t, ts.Config.Handler, id)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/solutions/" + sol.ID + "/events"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))

	read := func(want string) wsMessage {
		t.Helper()
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				t.Fatalf("read %s: %v", want, err)
			}
			if m.Type == want {
				return m
			}
		}
	}
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		t.Fatal(err)
	}
	read("connection_ack")
	pl, _ := json.Marshal(subscribePayload{Types: []string{EventRequestInserted}})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		t.Fatal(err)
	}
	// messages are handled in order, so the pong means the subscription is live
	if err := c.WriteJSON(wsMessage{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	read("pong")

	if rr := do(t, ts.Config.Handler, http.MethodPost, "/v1/solutions/"+sol.ID+"/insert", model.InsertRequest{Request: "c"}); rr.Code != 200 {
		t.Fatalf("insert: %d %s", rr.Code, rr.Body.String())
	}
	m := read("next")
	var evt model.Event
	if err := json.Unmarshal(m.Payload, &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if m.ID != "1" || evt.Type != EventRequestInserted || evt.SolutionID != sol.ID || evt.Data["request"] != "c" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestEventsUnknownSolution(t *testing.T) {
	h := newTestServer(t).Routes()
	if rr := do(t, h, http.MethodGet, "/v1/solutions/missing/events", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rr.Code)
	}
}

func TestSolutionLocksReleased(t *testing.T) {
	s := newTestServer(t)
	var wg sync.WaitGroup
	var counts [3]int // counts[k] is guarded by the lock of sol-k
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			unlock := s.lock(fmt.Sprintf("sol-%d", k))
			counts[k]++
			unlock()
		}(i % 3)
	}
	wg.Wait()
	if counts != [3]int{20, 20, 20} {
		t.Fatalf("counts = %v", counts)
	}

	unlock := s.lock("held")
	s.locksMu.Lock()
	n := len(s.locks)
	s.locksMu.Unlock()
	if n != 1 {
		t.Fatalf("live lock entries = %d, want 1", n)
	}
	unlock()
	s.locksMu.Lock()
	n = len(s.locks)
	s.locksMu.Unlock()
	if n != 0 {
		t.Fatalf("lock entries leak: %d left", n)
	}
}
