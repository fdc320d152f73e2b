package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multitalk-worker/internal/dto"
	"multitalk-worker/internal/storage"
	"multitalk-worker/pkg/comfy"
	apperrors "multitalk-worker/pkg/errors"
	"multitalk-worker/pkg/transfer"
	"multitalk-worker/pkg/workflow"
)

const shippedTemplate = "../../workflows/multitalk_api.json"

// pad returns content zero-padded to size.
func pad(content []byte, size int) []byte {
	out := make([]byte, size)
	copy(out, content)
	return out
}

func validRequest() *dto.JobRequest {
	return &dto.JobRequest{
		AudioCropStartTime:      0,
		AudioCropEndTime:        3.2,
		PositivePrompt:          "a person speaking",
		NegativePrompt:          "blurry",
		AspectRatio:             "9:16",
		ScaleToSide:             "height",
		ScaleToLength:           832,
		FPS:                     25,
		NumFrames:               81,
		EmbedsAudioScale:        1.0,
		EmbedsCfgAudioScale:     2.0,
		EmbedsMultiAudioType:    "para",
		EmbedsNormalizeLoudness: true,
		Steps:                   6,
		Seed:                    -1,
		Scheduler:               "lcm",
	}
}

// testEngine simulates the ComfyUI surface with history appearing after a few
// polls.
type testEngine struct {
	srv          *httptest.Server
	historyCalls atomic.Int32
	historyBody  atomic.Value // string
	submitBody   atomic.Value // string
	// history answers "{}" until historyCalls passes this threshold
	appearAfter int32
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	e := &testEngine{appearAfter: 2}
	e.historyBody.Store("{}")
	e.submitBody.Store(`{"prompt_id":"p-1"}`)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/queue", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"queue_running":[],"queue_pending":[]}`)
	})
	mux.HandleFunc("/prompt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, e.submitBody.Load().(string))
	})
	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		if e.historyCalls.Add(1) <= e.appearAfter {
			fmt.Fprint(w, "{}")
			return
		}
		fmt.Fprint(w, e.historyBody.Load().(string))
	})

	e.srv = httptest.NewServer(mux)
	t.Cleanup(e.srv.Close)
	return e
}

func (e *testEngine) completeWith(t *testing.T, nodeID, filename string) {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"p-1": map[string]any{
			"status": map[string]any{"status_str": "success"},
			"outputs": map[string]any{
				nodeID: map[string]any{"gifs": []any{map[string]any{"filename": filename}}},
			},
		},
	})
	require.NoError(t, err)
	e.historyBody.Store(string(body))
}

func newTestService(t *testing.T, engineURL string) *Service {
	t.Helper()

	tpl, err := workflow.LoadTemplate(shippedTemplate)
	require.NoError(t, err)

	base := t.TempDir()
	return &Service{
		Engine: comfy.NewClient(comfy.Config{
			BaseURL:        engineURL,
			HealthRetries:  3,
			HealthDelay:    5 * time.Millisecond,
			PollTimeout:    2 * time.Second,
			PollInterval:   10 * time.Millisecond,
			TransientDelay: 10 * time.Millisecond,
		}),
		Transfer:   transfer.NewClient(filepath.Join(base, "input"), 5*time.Second, 5*time.Second),
		Template:   tpl,
		OutputDir:  filepath.Join(base, "output"),
		OutputNode: "221",
	}
}

func assetServer(t *testing.T, image, audio []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(image)
	})
	mux.HandleFunc("/audio", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(audio)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProcessJob_EndToEnd(t *testing.T) {
	// Valid JPEG-signature image and ID3 audio
	assets := assetServer(t,
		pad([]byte{0xff, 0xd8, 0xff, 0xe0}, 50_000),
		pad([]byte("ID3\x04\x00"), 30_000))

	engine := newTestEngine(t)
	engine.completeWith(t, "221", "result.mp4")

	var uploaded []byte
	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		uploaded, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upload.Close)

	svc := newTestService(t, engine.srv.URL)

	// The engine deposits the artifact in the output directory
	artifact := bytes.Repeat([]byte{0xCD}, 4096)
	require.NoError(t, os.MkdirAll(svc.OutputDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(svc.OutputDir, "result.mp4"), artifact, 0o644))

	req := validRequest()
	req.ImageURL = assets.URL + "/image"
	req.AudioURL = assets.URL + "/audio"
	req.VideoUploadURL = upload.URL

	payload, err := svc.ProcessJob(req)
	require.NoError(t, err)
	require.NotNil(t, payload)

	assert.Equal(t, int64(4096), payload.VideoSize)
	assert.Equal(t, 81, payload.NumFrames)
	assert.InDelta(t, 81.0/25.0, payload.Duration, 1e-9)
	assert.Equal(t, artifact, uploaded)
}

func TestProcessJob_ImageDownloadFails(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	t.Cleanup(failing.Close)

	engine := newTestEngine(t)
	svc := newTestService(t, engine.srv.URL)

	req := validRequest()
	req.ImageURL = failing.URL
	req.AudioURL = failing.URL
	req.VideoUploadURL = failing.URL

	_, err := svc.ProcessJob(req)
	require.Error(t, err)
	assert.Contains(t, apperrors.GetMessage(err), "Image download failed")
	assert.Contains(t, apperrors.GetMessage(err), "403")
}

func TestProcessJob_AudioValidationFails(t *testing.T) {
	// Image is fine; audio is an HTML error page
	assets := assetServer(t,
		pad([]byte{0xff, 0xd8, 0xff, 0xe0}, 50_000),
		pad([]byte("<!DOCTYPE html><body>oops</body>"), 500))

	engine := newTestEngine(t)
	svc := newTestService(t, engine.srv.URL)

	req := validRequest()
	req.ImageURL = assets.URL + "/image"
	req.AudioURL = assets.URL + "/audio"

	_, err := svc.ProcessJob(req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeAudioInvalid))
	assert.Contains(t, apperrors.GetMessage(err), "Audio validation failed")
	assert.Contains(t, apperrors.GetMessage(err), "error page")
}

func TestProcessJob_ExecutionError(t *testing.T) {
	assets := assetServer(t,
		pad([]byte{0xff, 0xd8, 0xff, 0xe0}, 50_000),
		pad([]byte("ID3\x04\x00"), 30_000))

	engine := newTestEngine(t)
	body, err := json.Marshal(map[string]any{
		"p-1": map[string]any{
			"status": map[string]any{
				"status_str": "error",
				"messages": []any{
					[]any{"execution_error", map[string]any{
						"node_type":         "KSampler",
						"exception_message": "CUDA OOM",
					}},
				},
			},
		},
	})
	require.NoError(t, err)
	engine.historyBody.Store(string(body))

	svc := newTestService(t, engine.srv.URL)

	req := validRequest()
	req.ImageURL = assets.URL + "/image"
	req.AudioURL = assets.URL + "/audio"

	_, err = svc.ProcessJob(req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeEngineExecutionFailed))
	assert.Contains(t, apperrors.GetMessage(err), "Workflow execution error: KSampler: CUDA OOM")
}

func TestProcessJob_OutputMissingLocally(t *testing.T) {
	assets := assetServer(t,
		pad([]byte{0xff, 0xd8, 0xff, 0xe0}, 50_000),
		pad([]byte("ID3\x04\x00"), 30_000))

	engine := newTestEngine(t)
	engine.completeWith(t, "221", "ghost.mp4")

	svc := newTestService(t, engine.srv.URL)
	// Output dir exists but the artifact does not
	require.NoError(t, os.MkdirAll(svc.OutputDir, 0o755))

	req := validRequest()
	req.ImageURL = assets.URL + "/image"
	req.AudioURL = assets.URL + "/audio"

	_, err := svc.ProcessJob(req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeOutputMissing))
	assert.Contains(t, apperrors.GetMessage(err), "ghost.mp4")
}

func TestProcessJob_Timeout(t *testing.T) {
	assets := assetServer(t,
		pad([]byte{0xff, 0xd8, 0xff, 0xe0}, 50_000),
		pad([]byte("ID3\x04\x00"), 30_000))

	engine := newTestEngine(t)
	engine.appearAfter = 1 << 30 // never shows up in history

	svc := newTestService(t, engine.srv.URL)

	req := validRequest()
	req.ImageURL = assets.URL + "/image"
	req.AudioURL = assets.URL + "/audio"

	_, err := svc.ProcessJob(req)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeEngineTimeout))
	assert.Contains(t, apperrors.GetMessage(err), "timed out")
}

func TestProcessJob_RecordsHistory(t *testing.T) {
	oldDB := storage.DB
	t.Cleanup(func() { storage.DB = oldDB })
	require.NoError(t, storage.InitDB(filepath.Join(t.TempDir(), "worker.db")))

	assets := assetServer(t,
		pad([]byte{0xff, 0xd8, 0xff, 0xe0}, 50_000),
		pad([]byte("ID3\x04\x00"), 30_000))

	engine := newTestEngine(t)
	engine.completeWith(t, "221", "result.mp4")

	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(upload.Close)

	svc := newTestService(t, engine.srv.URL)
	require.NoError(t, os.MkdirAll(svc.OutputDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(svc.OutputDir, "result.mp4"), []byte("mp4mp4mp4"), 0o644))

	req := validRequest()
	req.ImageURL = assets.URL + "/image"
	req.AudioURL = assets.URL + "/audio"
	req.VideoUploadURL = upload.URL

	_, err := svc.ProcessJob(req)
	require.NoError(t, err)

	records, err := storage.RecentRecords(1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 200, records[0].Status)
	assert.Equal(t, "result.mp4", records[0].ArtifactName)
	assert.Equal(t, 81, records[0].NumFrames)
}
