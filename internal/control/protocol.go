// Package control exposes a running queue over a local unix socket. Each
// request and response is one JSON object per line.
package control

import "github.com/tanq16/vidown/internal/model"

type Action string

const (
	ActionAdd    Action = "add"
	ActionGet    Action = "get"
	ActionList   Action = "list"
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"
	ActionRemove Action = "remove"
	ActionRetry  Action = "retry"
	// ActionWatch keeps the connection open and streams one response per
	// registry snapshot.
	ActionWatch Action = "watch"
)

type Request struct {
	Action  Action         `json:"action"`
	ID      string         `json:"id,omitempty"`
	Request *model.Request `json:"request,omitempty"`
}

type Response struct {
	OK      bool        `json:"ok"`
	Error   string      `json:"error,omitempty"`
	Job     *model.Job  `json:"job,omitempty"`
	Jobs    []model.Job `json:"jobs,omitempty"`
	Version uint64      `json:"version,omitempty"`
}

func errorResponse(err error) Response {
	return Response{Error: err.Error()}
}

func jobResponse(job model.Job) Response {
	return Response{OK: true, Job: &job}
}
