package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"refreshd/internal/job"
	"refreshd/internal/runner"
	"refreshd/internal/scheduler"
	logx "refreshd/pkg/logx"
)

type fakeEngine struct {
	submitErr error
	submitted []string
	history   []job.Run
}

func (f *fakeEngine) Submit(name string, cause job.Cause) (*runner.Handle, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if cause != job.CauseManual {
		panic("admin must submit manual runs")
	}
	f.submitted = append(f.submitted, name)
	return runner.NewHandle("run-1"), nil
}

func (f *fakeEngine) History() []job.Run { return f.history }

func (f *fakeEngine) Jobs() []string { return []string{"stock-data"} }

type fakeSched struct{}

func (fakeSched) Snapshot() scheduler.Snapshot {
	return scheduler.Snapshot{
		Enabled:  true,
		Timezone: "UTC",
		Running:  true,
		Schedules: []scheduler.ScheduleInfo{
			{Job: "stock-data", Schedule: "0 3 * * *"},
		},
	}
}

func newTestServer(t *testing.T, eng Engine, token string) (*httptest.Server, *Service) {
	t.Helper()
	s := New(Config{Enabled: true, Token: token, TriggerPerMin: 600}, eng, fakeSched{}, nil, logx.Nop())
	ts := httptest.NewServer(s.handler(token))
	t.Cleanup(ts.Close)
	return ts, s
}

func TestHealthzUnauthenticated(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, &fakeEngine{}, "sekret")

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestTokenRequired(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, &fakeEngine{}, "sekret")

	resp, err := http.Get(ts.URL + "/jobs")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/jobs", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bearer token: status = %d", resp.StatusCode)
	}
	var snap scheduler.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Schedules) != 1 || snap.Schedules[0].Job != "stock-data" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestTriggerSubmitsManualRun(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	ts, _ := newTestServer(t, eng, "")

	resp, err := http.Post(ts.URL+"/trigger?job=stock-data", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["run_id"] != "run-1" || body["job"] != "stock-data" {
		t.Fatalf("body = %v", body)
	}
	if len(eng.submitted) != 1 || eng.submitted[0] != "stock-data" {
		t.Fatalf("submitted = %v", eng.submitted)
	}
}

func TestTriggerErrorMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want int
	}{
		{runner.ErrUnknownJob, http.StatusNotFound},
		{runner.ErrOverlapSkip, http.StatusConflict},
		{runner.ErrQueueFull, http.StatusServiceUnavailable},
		{runner.ErrStopped, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		ts, _ := newTestServer(t, &fakeEngine{submitErr: tc.err}, "")
		resp, err := http.Post(ts.URL+"/trigger?job=stock-data", "", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("%v: status = %d, want %d", tc.err, resp.StatusCode, tc.want)
		}
	}
}

func TestTriggerMissingJobParam(t *testing.T) {
	t.Parallel()
	ts, _ := newTestServer(t, &fakeEngine{}, "")
	resp, err := http.Post(ts.URL+"/trigger", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestTriggerRateLimited(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{}
	s := New(Config{Enabled: true, TriggerPerMin: 1}, eng, fakeSched{}, nil, logx.Nop())
	ts := httptest.NewServer(s.handler(""))
	t.Cleanup(ts.Close)

	first, err := http.Post(ts.URL+"/trigger?job=stock-data", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	first.Body.Close()
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("first: status = %d", first.StatusCode)
	}
	second, err := http.Post(ts.URL+"/trigger?job=stock-data", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second: status = %d", second.StatusCode)
	}
}

func TestRunsFallsBackToEngineHistory(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{history: []job.Run{
		{ID: "a", Job: "stock-data", Status: job.StatusSucceeded, Started: time.Now()},
		{ID: "b", Job: "fx-rates", Status: job.StatusFailed, Started: time.Now()},
	}}
	ts, _ := newTestServer(t, eng, "")

	resp, err := http.Get(ts.URL + "/runs?job=stock-data")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var runs []job.Run
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "a" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestRefusesInsecureBind(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, &fakeEngine{}, fakeSched{}, nil, logx.Nop())
	if err := s.Start(nil); err == nil {
		s.Stop(nil)
		t.Fatal("expected insecure bind to be refused")
	}
}

func TestLoopbackBindStartsAndStops(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, &fakeEngine{}, fakeSched{}, nil, logx.Nop())
	if err := s.Start(nil); err != nil {
		t.Fatal(err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("no bound address")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	s.Stop(nil)
	if s.Addr() != "" {
		t.Fatal("address should clear after stop")
	}
}
