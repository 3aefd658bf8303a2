package convert

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrRuntimeUnavailable means the container runtime binary or daemon cannot
// be reached. Sweeps treat it as a skip.
var ErrRuntimeUnavailable = eris.New("convert: container runtime unavailable")

// DefaultMaxAge is how long a conversion container may run before a sweep stops it.
const DefaultMaxAge = 120 * time.Second

// Container is one running sandbox.
type Container struct {
	ID      string
	Image   string
	Created time.Time
}

// Sweeper stops conversion containers that ran too long.
type Sweeper interface {
	SweepStale(ctx context.Context, maxAge time.Duration) (int, error)
}

// Runtime drives a docker-compatible CLI.
type Runtime struct {
	bin         string
	imagePrefix string
	now         func() time.Time
}

// NewRuntime creates a Runtime. Only containers whose image starts with
// imagePrefix are considered; an empty prefix matches all.
func NewRuntime(bin, imagePrefix string) *Runtime {
	if bin == "" {
		bin = "docker"
	}
	return &Runtime{bin: bin, imagePrefix: imagePrefix, now: time.Now}
}

// psLine is the subset of `ps --format '{{json .}}'` we read.
type psLine struct {
	ID        string `json:"ID"`
	Image     string `json:"Image"`
	CreatedAt string `json:"CreatedAt"`
}

const createdLayout = "2006-01-02 15:04:05 -0700 MST"

// List returns the running containers.
func (r *Runtime) List(ctx context.Context) ([]Container, error) {
	out, err := exec.CommandContext(ctx, r.bin, "ps", "--no-trunc", "--format", "{{json .}}").Output()
	if err != nil {
		return nil, r.classify(err)
	}

	var list []Container
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var p psLine
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return nil, eris.Wrap(err, "convert: parse ps output")
		}
		if r.imagePrefix != "" && !strings.HasPrefix(p.Image, r.imagePrefix) {
			continue
		}
		created, err := time.Parse(createdLayout, p.CreatedAt)
		if err != nil {
			return nil, eris.Wrapf(err, "convert: parse created time of %s", p.ID)
		}
		list = append(list, Container{ID: p.ID, Image: p.Image, Created: created})
	}
	return list, nil
}

// Stop stops one container.
func (r *Runtime) Stop(ctx context.Context, id string) error {
	if err := exec.CommandContext(ctx, r.bin, "stop", id).Run(); err != nil {
		return r.classify(err)
	}
	return nil
}

// SweepStale stops every container older than maxAge and returns how many
// were stopped.
func (r *Runtime) SweepStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	list, err := r.List(ctx)
	if err != nil {
		return 0, err
	}

	stopped := 0
	now := r.now()
	for _, c := range list {
		age := now.Sub(c.Created)
		if age < maxAge {
			continue
		}
		if err := r.Stop(ctx, c.ID); err != nil {
			return stopped, eris.Wrapf(err, "convert: stop %s", c.ID)
		}
		zap.L().Info("convert: stopped stale container",
			zap.String("id", c.ID),
			zap.String("image", c.Image),
			zap.Duration("age", age),
		)
		stopped++
	}
	return stopped, nil
}

// classify maps a missing binary or an unreachable daemon to ErrRuntimeUnavailable.
func (r *Runtime) classify(err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return eris.Wrapf(ErrRuntimeUnavailable, "%s not installed", r.bin)
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		msg := strings.ToLower(string(ee.Stderr))
		if strings.Contains(msg, "cannot connect") || strings.Contains(msg, "is the docker daemon running") {
			return eris.Wrap(ErrRuntimeUnavailable, strings.TrimSpace(string(ee.Stderr)))
		}
	}
	return eris.Wrapf(err, "convert: %s", r.bin)
}
