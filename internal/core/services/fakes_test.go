package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

// fakeRuntime is an in-memory substrate that enforces unique names the way
// the docker daemon does.
type fakeRuntime struct {
	mu        sync.Mutex
	instances map[string]domain.WorkerInstance
	seq       int

	created []domain.WorkerSpec
	started []domain.InstanceHandle
	removed []string

	listErr   error
	createErr error
	startErr  error
	removeErr error
	pingErr   error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{instances: make(map[string]domain.WorkerInstance)}
}

// seed adds n running instances of image under throwaway names.
func (f *fakeRuntime) seed(image string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.seq++
		name := fmt.Sprintf("seeded-%d", f.seq)
		f.instances[name] = domain.WorkerInstance{
			ID: fmt.Sprintf("id-%d", f.seq), Name: name, Image: image, State: domain.StateRunning,
		}
	}
}

func (f *fakeRuntime) ListInstances(_ context.Context, image string) ([]domain.WorkerInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.WorkerInstance
	for _, inst := range f.instances {
		if inst.Image == image {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (f *fakeRuntime) CreateInstance(_ context.Context, spec domain.WorkerSpec) (domain.InstanceHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, spec)
	if f.createErr != nil {
		return domain.InstanceHandle{}, f.createErr
	}
	if _, exists := f.instances[spec.Name]; exists {
		return domain.InstanceHandle{}, domain.ErrNameConflict
	}
	f.seq++
	id := fmt.Sprintf("id-%d", f.seq)
	f.instances[spec.Name] = domain.WorkerInstance{
		ID: id, Name: spec.Name, Image: spec.Image, State: domain.StateCreated,
	}
	return domain.InstanceHandle{ID: id, Name: spec.Name}, nil
}

func (f *fakeRuntime) StartInstance(_ context.Context, handle domain.InstanceHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, handle)
	if f.startErr != nil {
		return f.startErr
	}
	inst := f.instances[handle.Name]
	inst.State = domain.StateRunning
	f.instances[handle.Name] = inst
	return nil
}

func (f *fakeRuntime) RemoveInstance(_ context.Context, name string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, name)
	if f.removeErr != nil {
		return f.removeErr
	}
	if _, exists := f.instances[name]; !exists {
		return domain.ErrInstanceNotFound
	}
	delete(f.instances, name)
	return nil
}

func (f *fakeRuntime) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeRuntime) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.instances[name]
	return ok
}

func (f *fakeRuntime) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type MockMeetingDirectory struct {
	mock.Mock
}

func (m *MockMeetingDirectory) GetMeetingInfo(ctx context.Context, meetingID string) (domain.MeetingCredential, error) {
	args := m.Called(ctx, meetingID)
	return args.Get(0).(domain.MeetingCredential), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.StreamEvent
}

func (p *recordingPublisher) Publish(e domain.StreamEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []domain.StreamEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.StreamEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}
