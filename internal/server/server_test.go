package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"xviarchive/internal/audit"
	"xviarchive/internal/config"
	"xviarchive/internal/domain"
	"xviarchive/internal/engine"
	"xviarchive/internal/task"
)

type fakeProvider struct {
	fields []domain.TreatmentField
}

func (p *fakeProvider) FinishedTreatment(ctx context.Context, mrns []string) ([]domain.TreatmentField, error) {
	return p.fields, nil
}

func (p *fakeProvider) ClinicalTrials(ctx context.Context, mrns []string) ([]domain.TrialMembership, error) {
	return nil, nil
}

func (p *fakeProvider) Has4D(ctx context.Context, mrns []string) ([]domain.ConeBeam4D, error) {
	return nil, nil
}

func newTestServer(t *testing.T, jwtSecret string) (*httptest.Server, *engine.Engine) {
	t.Helper()
	tmp := t.TempDir()
	root := filepath.Join(tmp, "xvi")
	dir := filepath.Join(root, "patient_1234567")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.his"), []byte("data"), 0o644))

	settings := config.Default()
	settings.XVIPaths = []string{root}
	settings.ArchivePath = filepath.Join(tmp, "archive")
	require.NoError(t, os.MkdirAll(settings.ArchivePath, 0o755))
	settings.XVIProcess = ""

	provider := &fakeProvider{fields: []domain.TreatmentField{{
		MRN: "1234567", LastName: "Smith", FirstName: "Jane", MiddleName: "A",
		PrescribedFractions: 20, DeliveredFractions: 20,
		LastFractionDate: time.Now().AddDate(0, -2, 0),
	}}}
	e := engine.New(settings, provider)
	e.Audit = audit.New(filepath.Join(tmp, "actioned.yaml"))

	srv := httptest.NewServer(New(Config{Engine: e, JWTSecret: jwtSecret}))
	t.Cleanup(srv.Close)
	return srv, e
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

// pollTask drains /tasks/{id}/messages until the server reports finished.
func pollTask(t *testing.T, baseURL, taskID string) []task.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var all []task.Message
	for {
		require.False(t, time.Now().After(deadline), "task did not finish")
		res, data := doJSON(t, http.MethodGet, baseURL+"/v0/tasks/"+taskID+"/messages", nil, nil)
		require.Equal(t, http.StatusOK, res.StatusCode, string(data))
		var out struct {
			Messages []task.Message `json:"messages"`
			Finished bool           `json:"finished"`
		}
		require.NoError(t, json.Unmarshal(data, &out))
		all = append(all, out.Messages...)
		if out.Finished {
			return all
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, "")
	res, data := doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(data), `"ok"`)
}

func TestScanActionPollFlow(t *testing.T) {
	srv, e := newTestServer(t, "")

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/scans", map[string]any{"quick": true}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var started struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(data, &started))
	require.NotEmpty(t, started.TaskID)

	pollTask(t, srv.URL, started.TaskID)

	res, data = doJSON(t, http.MethodGet, srv.URL+"/v0/directories", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var listed struct {
		Directories []domain.Directory `json:"directories"`
	}
	require.NoError(t, json.Unmarshal(data, &listed))
	require.Len(t, listed.Directories, 1)
	require.Equal(t, domain.ActionDelete, listed.Directories[0].Action)

	res, data = doJSON(t, http.MethodPost, srv.URL+"/v0/actions", map[string]any{"action": "DELETE"}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &started))
	msgs := pollTask(t, srv.URL, started.TaskID)

	var success bool
	for _, m := range msgs {
		if m.Kind == task.KindProgress && m.Text == "1234567 - Smith Jane A: Successfully Deleted" {
			success = true
		}
	}
	require.True(t, success, "expected delete progress message, got %+v", msgs)
	require.Empty(t, e.Directories())
}

func TestActionWithoutScanIsRejected(t *testing.T) {
	srv, _ := newTestServer(t, "")
	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v0/actions", map[string]any{"action": "DELETE"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestActionRejectsKeep(t *testing.T) {
	srv, _ := newTestServer(t, "")
	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v0/actions", map[string]any{"action": "KEEP"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestBusyConflict(t *testing.T) {
	srv, e := newTestServer(t, "")

	// Hold the runner with a task that waits for release.
	release := make(chan struct{})
	_, err := e.Runner.Start("hold", func(tc *task.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	res, _ := doJSON(t, http.MethodPost, srv.URL+"/v0/scans", map[string]any{}, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode)
	close(release)
}

func TestUnknownTask(t *testing.T) {
	srv, _ := newTestServer(t, "")
	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v0/tasks/nope/messages", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v0/tasks/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestAuthRequiredWhenSecretSet(t *testing.T) {
	srv, _ := newTestServer(t, "test-secret")

	res, _ := doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	// Wrong signing key is rejected.
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).
		SignedString([]byte("other-secret"))
	require.NoError(t, err)
	res, _ = doJSON(t, http.MethodGet, srv.URL+"/v0/health", nil, map[string]string{
		"Authorization": "Bearer " + bad,
	})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestCancelTask(t *testing.T) {
	srv, e := newTestServer(t, "")

	res, data := doJSON(t, http.MethodPost, srv.URL+"/v0/scans", map[string]any{"quick": true}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var started struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(data, &started))

	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v0/tasks/"+started.TaskID, nil, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	// Cancellation never suppresses the terminal result message.
	pollTask(t, srv.URL, started.TaskID)

	// Tasks the server did not start stay invisible to it.
	h, err := e.Runner.Start("external", func(tc *task.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	res, _ = doJSON(t, http.MethodDelete, srv.URL+"/v0/tasks/"+h.ID, nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}
