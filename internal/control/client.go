package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/tanq16/vidown/internal/model"
)

var ErrDaemonUnavailable = errors.New("vidown daemon is not running")

// Client talks to a daemon over its control socket. Every call except Watch
// uses a fresh connection.
type Client struct {
	Path    string
	Timeout time.Duration
}

func NewClient(path string) *Client {
	return &Client{Path: path, Timeout: 10 * time.Second}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	return conn, nil
}

// Do sends one request and reads one response. A response with ok=false is
// returned as an error.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	deadline := time.Now().Add(c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("error sending request: %v", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("error reading response: %v", err)
	}
	if !resp.OK {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func (c *Client) job(ctx context.Context, req Request) (model.Job, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return model.Job{}, err
	}
	if resp.Job == nil {
		return model.Job{}, errors.New("daemon returned no job")
	}
	return *resp.Job, nil
}

func (c *Client) Add(ctx context.Context, req model.Request) (model.Job, error) {
	return c.job(ctx, Request{Action: ActionAdd, Request: &req})
}

func (c *Client) Get(ctx context.Context, id string) (model.Job, error) {
	return c.job(ctx, Request{Action: ActionGet, ID: id})
}

func (c *Client) List(ctx context.Context) ([]model.Job, error) {
	resp, err := c.Do(ctx, Request{Action: ActionList})
	if err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Control runs pause, resume, cancel, remove or retry on the job matching id
// (a full id or a unique prefix). Retry returns the new record.
func (c *Client) Control(ctx context.Context, action Action, id string) (model.Job, error) {
	switch action {
	case ActionPause, ActionResume, ActionCancel, ActionRemove, ActionRetry:
	default:
		return model.Job{}, fmt.Errorf("unknown control action %q", action)
	}
	return c.job(ctx, Request{Action: action, ID: id})
}

// Watch calls fn with each registry snapshot until ctx ends, the daemon goes
// away or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(version uint64, jobs []model.Job) error) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if err := json.NewEncoder(conn).Encode(Request{Action: ActionWatch}); err != nil {
		return fmt.Errorf("error sending request: %v", err)
	}
	dec := json.NewDecoder(conn)
	for {
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
		}
		if !resp.OK {
			return errors.New(resp.Error)
		}
		if err := fn(resp.Version, resp.Jobs); err != nil {
			return err
		}
	}
}
