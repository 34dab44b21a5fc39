package splunk

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	mylog "github.com/mazrean/splunkmcp/internal/pkg/log"
)

const testToken = "test-token"

func newTestClient(t *testing.T, token string, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(mylog.NewLogger(mylog.Silent), server.URL, token, WithBaseClient(server.Client()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	return client
}

// checkRequest fails the request with 400 when the common request properties are wrong
func checkRequest(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, fmt.Sprintf("unexpected method %s", r.Method), http.StatusBadRequest)
		return false
	}
	if got := r.Header.Get("Authorization"); got != "Bearer "+testToken {
		http.Error(w, fmt.Sprintf("unexpected authorization %q", got), http.StatusBadRequest)
		return false
	}
	if got := r.URL.Query().Get("output_mode"); got != "json" {
		http.Error(w, fmt.Sprintf("unexpected output_mode %q", got), http.StatusBadRequest)
		return false
	}

	return true
}

func TestClient_names(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/services/data/indexes", func(w http.ResponseWriter, r *http.Request) {
		if !checkRequest(w, r, http.MethodGet) {
			return
		}
		if r.URL.Query().Get("count") != "0" {
			http.Error(w, "count must be 0", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"entry":[{"name":"main","content":{}},{"name":"winevent_security","content":{}},{"name":"_internal","content":{}}]}`)
	})
	mux.HandleFunc("/services/apps/local", func(w http.ResponseWriter, r *http.Request) {
		if !checkRequest(w, r, http.MethodGet) {
			return
		}
		fmt.Fprint(w, `{"entry":[{"name":"search","content":{"visible":true}},{"name":"Splunk_SA_CIM","content":{}}]}`)
	})
	client := newTestClient(t, testToken, mux)

	indexes, err := client.Indexes(t.Context())
	if err != nil {
		t.Fatalf("Indexes() error = %v", err)
	}
	if diff := cmp.Diff([]string{"main", "winevent_security", "_internal"}, indexes); diff != "" {
		t.Errorf("Indexes() mismatch (-want +got):\n%s", diff)
	}

	apps, err := client.Apps(t.Context())
	if err != nil {
		t.Fatalf("Apps() error = %v", err)
	}
	if diff := cmp.Diff([]string{"search", "Splunk_SA_CIM"}, apps); diff != "" {
		t.Errorf("Apps() mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_DataModels(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/services/datamodel/model", func(w http.ResponseWriter, r *http.Request) {
		if !checkRequest(w, r, http.MethodGet) {
			return
		}
		fmt.Fprint(w, `{"entry":[`+
			`{"name":"Authentication","content":{"objects":[{"objectName":"Authentication"}]}},`+
			`{"name":"Endpoint","content":{"eai:data":"{\"modelName\":\"Endpoint\",\"objects\":[{\"objectName\":\"Processes\"}]}"}},`+
			`{"name":"Empty","content":{}}`+
			`]}`)
	})
	client := newTestClient(t, testToken, mux)

	models, err := client.DataModels(t.Context())
	if err != nil {
		t.Fatalf("DataModels() error = %v", err)
	}

	got := map[string][]string{}
	var order []string
	for _, m := range models {
		order = append(order, m.Name)
		objects := []string{}
		for _, o := range m.Objects {
			objects = append(objects, string(o))
		}
		got[m.Name] = objects
	}

	want := map[string][]string{
		"Authentication": {`{"objectName":"Authentication"}`},
		"Endpoint":       {`{"objectName":"Processes"}`},
		"Empty":          {},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DataModels() objects mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Authentication", "Endpoint", "Empty"}, order); diff != "" {
		t.Errorf("DataModels() order mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_missingCredential(t *testing.T) {
	t.Parallel()

	var called atomic.Bool
	client := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	}))

	_, err := client.Indexes(t.Context())
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("Indexes() error = %v, want ErrMissingCredential", err)
	}
	if called.Load() {
		t.Error("request sent without a credential")
	}
}

func TestClient_apiError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, testToken, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"messages":[{"type":"WARN","text":"call not properly authenticated"}]}`)
	}))

	_, err := client.Apps(t.Context())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Apps() error = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", apiErr.StatusCode, http.StatusUnauthorized)
	}
	if diff := cmp.Diff([]Message{{Type: "WARN", Text: "call not properly authenticated"}}, apiErr.Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if !IsStatus(err, http.StatusForbidden, http.StatusUnauthorized) {
		t.Error("IsStatus() = false, want true")
	}
	if IsStatus(err, http.StatusConflict) {
		t.Error("IsStatus(409) = true, want false")
	}
}

func TestClient_CreateJob(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/services/search/jobs", func(w http.ResponseWriter, r *http.Request) {
		if !checkRequest(w, r, http.MethodPost) {
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		want := map[string]string{
			"search":        "search index=main",
			"id":            "sid-1",
			"earliest_time": "-24h",
			"latest_time":   "now",
		}
		for k, v := range want {
			if got := r.PostForm.Get(k); got != v {
				http.Error(w, fmt.Sprintf("%s = %q, want %q", k, got, v), http.StatusBadRequest)
				return
			}
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"sid":"sid-1"}`)
	})
	client := newTestClient(t, testToken, mux)

	sid, err := client.CreateJob(t.Context(), JobRequest{
		ID:       "sid-1",
		Search:   "search index=main",
		Earliest: "-24h",
		Latest:   "now",
	})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
	if sid != "sid-1" {
		t.Errorf("CreateJob() = %q, want %q", sid, "sid-1")
	}
}

func TestClient_JobStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		body         string
		wantDone     bool
		wantFailed   bool
		wantMessages []Message
	}{
		{
			name: "running",
			body: `{"entry":[{"name":"sid-1","content":{"dispatchState":"RUNNING","isDone":false,"isFailed":false}}]}`,
		},
		{
			name:     "done",
			body:     `{"entry":[{"name":"sid-1","content":{"dispatchState":"DONE","isDone":true,"isFailed":false}}]}`,
			wantDone: true,
		},
		{
			name:         "failed with message list",
			body:         `{"entry":[{"name":"sid-1","content":{"dispatchState":"FAILED","isDone":true,"isFailed":true,"messages":[{"type":"FATAL","text":"Unknown search command 'foo'."}]}}]}`,
			wantFailed:   true,
			wantMessages: []Message{{Type: "FATAL", Text: "Unknown search command 'foo'."}},
		},
		{
			name:         "failed with message map",
			body:         `{"entry":[{"name":"sid-1","content":{"dispatchState":"FAILED","isFailed":true,"messages":{"error":["bad"],"fatal":["worse"]}}}]}`,
			wantFailed:   true,
			wantMessages: []Message{{Type: "fatal", Text: "worse"}, {Type: "error", Text: "bad"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mux := http.NewServeMux()
			mux.HandleFunc("/services/search/jobs/sid-1", func(w http.ResponseWriter, r *http.Request) {
				if !checkRequest(w, r, http.MethodGet) {
					return
				}
				fmt.Fprint(w, tt.body)
			})
			client := newTestClient(t, testToken, mux)

			status, err := client.JobStatus(t.Context(), "sid-1")
			if err != nil {
				t.Fatalf("JobStatus() error = %v", err)
			}
			if status.Done() != tt.wantDone {
				t.Errorf("Done() = %t, want %t", status.Done(), tt.wantDone)
			}
			if status.Failed() != tt.wantFailed {
				t.Errorf("Failed() = %t, want %t", status.Failed(), tt.wantFailed)
			}
			if diff := cmp.Diff(tt.wantMessages, status.Messages()); diff != "" {
				t.Errorf("Messages() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClient_Results(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		wantReady bool
		want      []string
	}{
		{
			name:   "not ready",
			status: http.StatusNoContent,
		},
		{
			name:   "no results key",
			status: http.StatusOK,
			body:   `{"preview":false}`,
		},
		{
			name:      "empty results",
			status:    http.StatusOK,
			body:      `{"results":[]}`,
			wantReady: true,
			want:      []string{},
		},
		{
			name:      "results in backend order",
			status:    http.StatusOK,
			body:      `{"results":[{"user":"bob","count":"3"},{"user":"alice","count":"1"}]}`,
			wantReady: true,
			want:      []string{`{"user":"bob","count":"3"}`, `{"user":"alice","count":"1"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mux := http.NewServeMux()
			mux.HandleFunc("/services/search/jobs/sid-1/results", func(w http.ResponseWriter, r *http.Request) {
				if !checkRequest(w, r, http.MethodGet) {
					return
				}
				if r.URL.Query().Get("count") != "20" {
					http.Error(w, "count must be 20", http.StatusBadRequest)
					return
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			client := newTestClient(t, testToken, mux)

			results, ready, err := client.Results(t.Context(), "sid-1", 20)
			if err != nil {
				t.Fatalf("Results() error = %v", err)
			}
			if ready != tt.wantReady {
				t.Fatalf("ready = %t, want %t", ready, tt.wantReady)
			}
			if !ready {
				return
			}

			got := make([]string, 0, len(results))
			for _, r := range results {
				got = append(got, string(r))
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Results() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClient_CancelJob(t *testing.T) {
	t.Parallel()

	var action atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/services/search/jobs/sid-1/control", func(w http.ResponseWriter, r *http.Request) {
		if !checkRequest(w, r, http.MethodPost) {
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		action.Store(r.PostForm.Get("action"))
		fmt.Fprint(w, `{"messages":[{"type":"INFO","text":"Search job cancelled."}]}`)
	})
	client := newTestClient(t, testToken, mux)

	if err := client.CancelJob(t.Context(), "sid-1"); err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	if got, _ := action.Load().(string); got != "cancel" {
		t.Errorf("action = %q, want %q", got, "cancel")
	}
}
