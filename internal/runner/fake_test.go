package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shinji-kodama/envmatrix/internal/model"
)

// fakeBackend is an in-memory Backend. Exit codes are looked up by the
// program name (Args[0]); unknown programs exit 0.
type fakeBackend struct {
	exitCodes     map[string]int
	openErr       map[string]error
	provisionErr  map[string]error
	startErr      map[string]error
	cancelOn      string
	cancel        context.CancelFunc
	calls         []string
	provisioned   []string
	closed        []string
	invocationEnv []map[string]string
	invocationDir []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		exitCodes:    map[string]int{},
		openErr:      map[string]error{},
		provisionErr: map[string]error{},
		startErr:     map[string]error{},
	}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Open(_ context.Context, env model.Environment) (Session, error) {
	if err := b.openErr[env.Name]; err != nil {
		return nil, err
	}
	return &fakeSession{backend: b, env: env}, nil
}

type fakeSession struct {
	backend *fakeBackend
	env     model.Environment
}

func (s *fakeSession) Provision(context.Context) error {
	s.backend.provisioned = append(s.backend.provisioned, s.env.Name)
	return s.backend.provisionErr[s.env.Name]
}

func (s *fakeSession) Run(ctx context.Context, inv Invocation) (int, error) {
	line := strings.Join(inv.Args, " ")
	s.backend.calls = append(s.backend.calls, s.env.Name+": "+line)
	s.backend.invocationEnv = append(s.backend.invocationEnv, inv.Env)
	s.backend.invocationDir = append(s.backend.invocationDir, inv.Dir)
	if err := s.backend.startErr[inv.Args[0]]; err != nil {
		return -1, err
	}
	if s.backend.cancelOn == line && s.backend.cancel != nil {
		s.backend.cancel()
		return 130, nil
	}
	if inv.Stdout != nil {
		fmt.Fprintf(inv.Stdout, "ran %s\n", line)
	}
	return s.backend.exitCodes[inv.Args[0]], nil
}

func (s *fakeSession) Paths() Paths {
	return Paths{RootDir: "/src", EnvDir: "/src/.envmatrix/" + s.env.Name, BinDir: "/src/.envmatrix/" + s.env.Name + "/bin"}
}

func (s *fakeSession) Close(context.Context) error {
	s.backend.closed = append(s.backend.closed, s.env.Name)
	return nil
}

var errNetwork = errors.New("network unreachable")
