package provision

import (
	"context"
	"errors"
	"strings"
	"sync"
)

type result struct {
	out string
	err error
}

// fakeRunner replays scripted results per command line. When a script runs
// out, its last result repeats.
type fakeRunner struct {
	mu       sync.Mutex
	paths    map[string]string
	files    map[string]bool
	scripts  map[string][]result
	calls    []string
	detached []string
	startErr error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		paths:   map[string]string{},
		files:   map[string]bool{},
		scripts: map[string][]result{},
	}
}

func (f *fakeRunner) script(cmdline string, results ...result) {
	f.scripts[cmdline] = results
}

func (f *fakeRunner) LookPath(file string) (string, error) {
	if p, ok := f.paths[file]; ok {
		return p, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

func (f *fakeRunner) FileExists(path string) bool {
	return f.files[path]
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	line := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, line)

	results, ok := f.scripts[line]
	if !ok || len(results) == 0 {
		return "", errors.New("exit status 1")
	}
	r := results[0]
	if len(results) > 1 {
		f.scripts[line] = results[1:]
	}
	return r.out, r.err
}

func (f *fakeRunner) StartDetached(name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = append(f.detached, strings.Join(append([]string{name}, args...), " "))
	return f.startErr
}

func (f *fakeRunner) count(cmdline string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == cmdline {
			n++
		}
	}
	return n
}
