package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cschleiden/go-tasks/backend/memory"
	"github.com/cschleiden/go-tasks/client"
	"github.com/cschleiden/go-tasks/core"
	"github.com/cschleiden/go-tasks/registry"
	"github.com/cschleiden/go-tasks/worker"
	"github.com/stretchr/testify/require"
)

type reindexTask struct {
	Mailbox string `json:"mailbox"`
	Block   bool   `json:"block"`
}

func (t *reindexTask) Type() string {
	return "reindex"
}

func (t *reindexTask) Run(ctx context.Context) (core.Result, error) {
	if t.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}

	return core.ResultCompleted, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	r := registry.New()
	require.NoError(t, r.RegisterTask(&reindexTask{}))

	b := memory.NewMemoryBackend()
	w := worker.New(b, &worker.Options{Hostname: "node-1", Registry: r})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewRouter(client.New(b, client.WithWorker(w)), logger))

	t.Cleanup(func() {
		srv.Close()
		cancel()
		require.NoError(t, w.WaitForCompletion())
	})

	return srv
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	return res, data
}

func submit(t *testing.T, srv *httptest.Server, task *reindexTask) core.TaskID {
	t.Helper()

	data, err := json.Marshal(task)
	require.NoError(t, err)

	res, body := do(t, http.MethodPost, srv.URL+"/api/tasks", &SubmitTaskRequest{Type: "reindex", Task: data})
	require.Equal(t, http.StatusAccepted, res.StatusCode, string(body))

	var sr SubmitTaskResponse
	require.NoError(t, json.Unmarshal(body, &sr))
	require.NotEmpty(t, sr.ID)

	return sr.ID
}

func Test_SubmitAndAwait(t *testing.T) {
	srv := newTestServer(t)

	id := submit(t, srv, &reindexTask{Mailbox: "bob@example.com"})

	res, body := do(t, http.MethodGet, srv.URL+"/api/tasks/"+id.String()+"/await?timeout=5s", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))

	var info TaskInfo
	require.NoError(t, json.Unmarshal(body, &info))
	require.Equal(t, id, info.ID)
	require.Equal(t, "reindex", info.Type)
	require.Equal(t, core.TaskExecutionStatusCompleted, info.Status)
	require.Equal(t, core.ResultCompleted, *info.Result)
	require.Equal(t, core.Hostname("node-1"), info.RanNode)
	require.NotNil(t, info.FinishedAt)

	res, body = do(t, http.MethodGet, srv.URL+"/api/tasks/"+id.String()+"/history", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var h TaskHistory
	require.NoError(t, json.Unmarshal(body, &h))
	require.Len(t, h.History, 3)
	require.Equal(t, "Created", h.History[0].Type)
	require.Equal(t, "Completed", h.History[2].Type)
}

func Test_SubmitInvalidRequests(t *testing.T) {
	srv := newTestServer(t)

	for _, tt := range []struct {
		name string
		body any
	}{
		{"missing type", &SubmitTaskRequest{}},
		{"unknown type", &SubmitTaskRequest{Type: "backup"}},
		{"reference", &SubmitTaskRequest{Type: "memory-reference-task"}},
		{"invalid task", &SubmitTaskRequest{Type: "reindex", Task: json.RawMessage(`"mailbox"`)}},
		{"not an object", "reindex"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := do(t, http.MethodPost, srv.URL+"/api/tasks", tt.body)
			require.Equal(t, http.StatusBadRequest, res.StatusCode)
		})
	}
}

func Test_GetTask(t *testing.T) {
	srv := newTestServer(t)

	res, _ := do(t, http.MethodGet, srv.URL+"/api/tasks/"+core.NewTaskID().String(), nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = do(t, http.MethodGet, srv.URL+"/api/tasks/not-a-task", nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func Test_CancelAndAwaitTimeout(t *testing.T) {
	srv := newTestServer(t)

	id := submit(t, srv, &reindexTask{Block: true})

	res, body := do(t, http.MethodGet, srv.URL+"/api/tasks/"+id.String()+"/await?timeout=10ms", nil)
	require.Equal(t, http.StatusRequestTimeout, res.StatusCode)
	require.Contains(t, string(body), "status")

	res, body = do(t, http.MethodDelete, srv.URL+"/api/tasks/"+id.String(), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var cr CancelTaskResponse
	require.NoError(t, json.Unmarshal(body, &cr))
	require.Contains(t, []core.TaskExecutionStatus{
		core.TaskExecutionStatusCancelRequested,
		core.TaskExecutionStatusCancelled,
	}, cr.Status)

	res, body = do(t, http.MethodGet, srv.URL+"/api/tasks/"+id.String()+"/await?timeout=5s", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var info TaskInfo
	require.NoError(t, json.Unmarshal(body, &info))
	require.Equal(t, core.TaskExecutionStatusCancelled, info.Status)
	require.Equal(t, core.Hostname("node-1"), info.CancelRequestedBy)

	res, _ = do(t, http.MethodDelete, srv.URL+"/api/tasks/"+core.NewTaskID().String(), nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = do(t, http.MethodGet, srv.URL+"/api/tasks/"+id.String()+"/await?timeout=soon", nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func Test_ListRemoveAndStats(t *testing.T) {
	srv := newTestServer(t)

	done := submit(t, srv, &reindexTask{})
	res, _ := do(t, http.MethodGet, srv.URL+"/api/tasks/"+done.String()+"/await?timeout=5s", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	running := submit(t, srv, &reindexTask{Block: true})
	t.Cleanup(func() {
		do(t, http.MethodDelete, srv.URL+"/api/tasks/"+running.String(), nil)
	})

	list := func(query string) []*TaskInfo {
		res, body := do(t, http.MethodGet, srv.URL+"/api/tasks"+query, nil)
		require.Equal(t, http.StatusOK, res.StatusCode, string(body))

		var infos []*TaskInfo
		require.NoError(t, json.Unmarshal(body, &infos))
		return infos
	}

	require.Len(t, list(""), 2)
	require.Len(t, list("?type=reindex"), 2)
	require.Empty(t, list("?type=backup"))

	completed := list("?status=completed")
	require.Len(t, completed, 1)
	require.Equal(t, done, completed[0].ID)

	res, _ = do(t, http.MethodGet, srv.URL+"/api/tasks?status=sleeping", nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = do(t, http.MethodDelete, srv.URL+"/api/tasks", nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	// Nothing finished a day ago
	res, _ = do(t, http.MethodDelete, srv.URL+"/api/tasks?retention=24h", nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	require.Len(t, list(""), 2)

	res, _ = do(t, http.MethodDelete, srv.URL+"/api/tasks?finished_before="+time.Now().Add(time.Minute).UTC().Format(time.RFC3339), nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	remaining := list("")
	require.Len(t, remaining, 1)
	require.Equal(t, running, remaining[0].ID)

	res, body := do(t, http.MethodGet, srv.URL+"/api/stats", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(body, &stats))
	require.Equal(t, int64(1), stats.ActiveTasks)
	require.Equal(t, int64(0), stats.FinishedTasks)
}

func Test_Healthz(t *testing.T) {
	srv := newTestServer(t)

	res, _ := do(t, http.MethodGet, srv.URL+"/healthz", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
}
