// Package server exposes the scan/classify/action engine over HTTP for
// presentation layers. Progress is consumed the same way the CLI does:
// start a task, then poll its message queue until the result appears.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xviarchive/internal/domain"
	"xviarchive/internal/engine"
	"xviarchive/internal/task"
)

// Config for the HTTP API handler.
type Config struct {
	Engine    *engine.Engine
	BasePath  string
	JWTSecret string
}

type server struct {
	engine *engine.Engine

	mu    sync.Mutex
	tasks map[string]*task.Handle
}

// New returns an HTTP handler exposing the archive tool API.
func New(cfg Config) http.Handler {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	s := &server{engine: cfg.Engine, tasks: map[string]*task.Handle{}}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(cfg.JWTSecret))
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	api := humachi.New(router, huma.DefaultConfig("XVI Archive Tool API", "1.0.0"))
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	s.registerDirectories(group)
	s.registerScans(group)
	s.registerActions(group)
	s.registerTasks(group)
	return router
}

func registerHealth(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status" example:"ok"`
		}
	}
	huma.Get(api, "/health", func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})
}

type directoriesOutput struct {
	Body struct {
		Directories []domain.Directory `json:"directories"`
	}
}

func (s *server) registerDirectories(api huma.API) {
	huma.Get(api, "/directories", func(ctx context.Context, _ *struct{}) (*directoriesOutput, error) {
		out := &directoriesOutput{}
		out.Body.Directories = s.engine.Directories()
		return out, nil
	})
}

type taskOutput struct {
	Body struct {
		TaskID string `json:"task_id"`
	}
}

type scanInput struct {
	Body struct {
		Quick bool `json:"quick,omitempty"`
	}
}

func (s *server) registerScans(api huma.API) {
	huma.Post(api, "/scans", func(ctx context.Context, in *scanInput) (*taskOutput, error) {
		h, err := s.engine.StartScan(context.Background(), in.Body.Quick)
		if err != nil {
			return nil, busyOr(err)
		}
		scansStarted.Inc()
		s.remember(h)
		out := &taskOutput{}
		out.Body.TaskID = h.ID
		return out, nil
	})
}

type actionInput struct {
	Body struct {
		Action string   `json:"action" enum:"ARCHIVE,DELETE"`
		MRNs   []string `json:"mrns,omitempty" doc:"Restrict the action to these MRNs; empty means every matching record."`
	}
}

func (s *server) registerActions(api huma.API) {
	huma.Post(api, "/actions", func(ctx context.Context, in *actionInput) (*taskOutput, error) {
		act, err := domain.ParseAction(in.Body.Action)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		if act != domain.ActionArchive && act != domain.ActionDelete {
			return nil, huma.Error422UnprocessableEntity("action must be ARCHIVE or DELETE")
		}
		if err := s.engine.CheckActionPreconditions(act); err != nil {
			return nil, huma.Error412PreconditionFailed(err.Error())
		}
		dirs := selectDirs(s.engine.Directories(), act, in.Body.MRNs)
		if len(dirs) == 0 {
			return nil, huma.Error422UnprocessableEntity("no classified directories match the requested action; run a scan first")
		}
		h, err := s.engine.StartAction(dirs, act)
		if err != nil {
			return nil, busyOr(err)
		}
		actionsStarted.WithLabelValues(string(act)).Inc()
		s.remember(h)
		out := &taskOutput{}
		out.Body.TaskID = h.ID
		return out, nil
	})
}

type taskParam struct {
	ID string `path:"id"`
}

type messagesOutput struct {
	Body struct {
		Messages []task.Message `json:"messages"`
		Finished bool           `json:"finished"`
	}
}

func (s *server) registerTasks(api huma.API) {
	huma.Get(api, "/tasks/{id}/messages", func(ctx context.Context, in *taskParam) (*messagesOutput, error) {
		h := s.lookup(in.ID)
		if h == nil {
			return nil, huma.Error404NotFound("unknown task")
		}
		out := &messagesOutput{}
		out.Body.Messages = h.Poll()
		out.Body.Finished = h.Finished()
		if out.Body.Messages == nil {
			out.Body.Messages = []task.Message{}
		}
		return out, nil
	})

	huma.Delete(api, "/tasks/{id}", func(ctx context.Context, in *taskParam) (*struct{}, error) {
		h := s.lookup(in.ID)
		if h == nil {
			return nil, huma.Error404NotFound("unknown task")
		}
		h.Cancel()
		return nil, nil
	})
}

func (s *server) remember(h *task.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[h.ID] = h
}

func (s *server) lookup(id string) *task.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id]
}

func busyOr(err error) error {
	if errors.Is(err, task.ErrBusy) {
		taskBusy.Inc()
		return huma.Error409Conflict("a task is already running")
	}
	return err
}

func selectDirs(dirs []domain.Directory, act domain.Action, mrns []string) []domain.Directory {
	matched := domain.Filter(dirs, act)
	if len(mrns) == 0 {
		return matched
	}
	want := make(map[string]bool, len(mrns))
	for _, m := range mrns {
		want[m] = true
	}
	out := matched[:0]
	for _, d := range matched {
		if want[d.MRN] {
			out = append(out, d)
		}
	}
	return out
}
