package docker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeEngine is an in-memory engineAPI. Exec exit codes are looked up by
// the joined argv; unknown commands exit 0 and print "ok".
type fakeEngine struct {
	images     []string
	pulled     []string
	created    []*container.Config
	hostConfig []*container.HostConfig
	started    []string
	removed    []string
	execs      []container.ExecOptions
	exitCodes  map[string]int
	stderr     map[string]string
	listed     []container.Summary
	listFilter []string
	listErr    error

	pending map[string]container.ExecOptions
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		exitCodes: map[string]int{},
		stderr:    map[string]string{},
		pending:   map[string]container.ExecOptions{},
	}
}

func (f *fakeEngine) Ping(context.Context) (types.Ping, error) { return types.Ping{}, nil }

func (f *fakeEngine) ImageList(_ context.Context, opts image.ListOptions) ([]image.Summary, error) {
	for _, ref := range opts.Filters.Get("reference") {
		for _, img := range f.images {
			if img == ref {
				return []image.Summary{{ID: "sha256:" + ref}}, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeEngine) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.pulled = append(f.pulled, ref)
	return io.NopCloser(strings.NewReader(`{"status":"Pulling"}`)), nil
}

func (f *fakeEngine) ContainerCreate(_ context.Context, cfg *container.Config, host *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, _ string) (container.CreateResponse, error) {
	f.created = append(f.created, cfg)
	f.hostConfig = append(f.hostConfig, host)
	return container.CreateResponse{ID: "ctr1"}, nil
}

func (f *fakeEngine) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeEngine) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeEngine) ContainerList(_ context.Context, opts container.ListOptions) ([]container.Summary, error) {
	f.listFilter = opts.Filters.Get("label")
	return f.listed, f.listErr
}

func (f *fakeEngine) ContainerExecCreate(_ context.Context, _ string, opts container.ExecOptions) (container.ExecCreateResponse, error) {
	f.execs = append(f.execs, opts)
	id := strings.Join(opts.Cmd, " ")
	f.pending[id] = opts
	return container.ExecCreateResponse{ID: id}, nil
}

func (f *fakeEngine) ContainerExecAttach(_ context.Context, execID string, _ container.ExecAttachOptions) (types.HijackedResponse, error) {
	var buf bytes.Buffer
	if msg, ok := f.stderr[execID]; ok {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(msg))
	} else {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte("ok\n"))
	}
	client, server := net.Pipe()
	_ = server.Close()
	return types.HijackedResponse{Conn: client, Reader: bufio.NewReader(&buf)}, nil
}

func (f *fakeEngine) ContainerExecInspect(_ context.Context, execID string) (container.ExecInspect, error) {
	if _, ok := f.pending[execID]; !ok {
		return container.ExecInspect{}, errors.New("no such exec")
	}
	return container.ExecInspect{ExecID: execID, ExitCode: f.exitCodes[execID]}, nil
}

func (f *fakeEngine) Close() error { return nil }
