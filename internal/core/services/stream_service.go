package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/domain"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/ports"
	apperrors "github.com/ulearning-intl/bigbluebutton-streaming/pkg/errors"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/tracing"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/validation"

	"go.uber.org/zap"
)

// Metric outcome labels
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeAbsent   = "absent"
)

// StreamConfig configures the stream lifecycle controller.
type StreamConfig struct {
	Image                string
	NamePrefix           string
	ControlSocket        string
	MaxConcurrentStreams int
	RuntimeTimeout       time.Duration
	// DirectoryTimeout bounds one credential lookup, retries included.
	DirectoryTimeout     time.Duration
	// RemoveOnStartFailure force-removes a worker that was created but
	// could not be started. Off by default: the runtime's auto-remove is
	// left to clean it up.
	RemoveOnStartFailure bool
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.Image == "" {
		c.Image = DefaultWorkerImage
	}
	if c.NamePrefix == "" {
		c.NamePrefix = DefaultNamePrefix
	}
	if c.ControlSocket == "" {
		c.ControlSocket = DefaultControlSocket
	}
	if c.RuntimeTimeout <= 0 {
		c.RuntimeTimeout = 30 * time.Second
	}
	if c.DirectoryTimeout <= 0 {
		c.DirectoryTimeout = 15 * time.Second
	}
	return c
}

type streamController struct {
	cfg       StreamConfig
	directory ports.MeetingDirectory
	runtime   ports.WorkerRuntime
	admission ports.AdmissionGuard
	events    ports.EventPublisher
	metrics   ports.StreamMetrics
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// Option customizes the controller's optional collaborators.
type Option func(*streamController)

func WithAdmissionGuard(g ports.AdmissionGuard) Option {
	return func(s *streamController) { s.admission = g }
}

func WithEventPublisher(p ports.EventPublisher) Option {
	return func(s *streamController) { s.events = p }
}

func WithMetrics(m ports.StreamMetrics) Option {
	return func(s *streamController) { s.metrics = m }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *streamController) { s.logger = l }
}

func NewStreamController(
	cfg StreamConfig,
	directory ports.MeetingDirectory,
	runtime ports.WorkerRuntime,
	opts ...Option,
) ports.StreamController {
	s := &streamController{
		cfg:       cfg.withDefaults(),
		directory: directory,
		runtime:   runtime,
		admission: NewLocalAdmissionGuard(),
		events:    noopPublisher{},
		metrics:   noopMetrics{},
		logger:    zap.NewNop().Sugar(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *streamController) Start(ctx context.Context, req domain.StreamRequest) (domain.WorkerInstance, error) {
	ctx, span := tracing.TraceStreamOperation(ctx, "start", req.MeetingID)
	defer span.End()

	instance, err := s.start(ctx, req)
	if err != nil {
		kind := apperrors.KindOf(err)
		tracing.RecordError(ctx, err)
		tracing.AddSpanAttributes(ctx, tracing.ErrorKindKey.String(string(kind)))

		outcome := string(kind)
		eventType := domain.EventFailed
		if kind == apperrors.ErrCodeCapacityExceeded {
			outcome = OutcomeRejected
			eventType = domain.EventRejected
		}
		s.metrics.RecordStart(outcome)
		if kind != apperrors.ErrCodeValidation {
			s.publish(eventType, req.MeetingID, instance.Name, string(kind))
		}
		return instance, err
	}

	s.metrics.RecordStart(OutcomeSuccess)
	s.publish(domain.EventStarted, req.MeetingID, instance.Name, "")
	return instance, nil
}

func (s *streamController) start(ctx context.Context, req domain.StreamRequest) (domain.WorkerInstance, error) {
	if err := validation.ValidateMeetingID(req.MeetingID); err != nil {
		return domain.WorkerInstance{}, apperrors.NewValidationError(err.Error())
	}
	if err := validation.ValidateRTMPURL(req.RTMPURL); err != nil {
		return domain.WorkerInstance{}, apperrors.NewValidationError(err.Error())
	}

	log := s.logger.With("meeting_id", req.MeetingID)

	cred, err := s.lookup(ctx, req.MeetingID)
	if err != nil {
		log.Warnw("meeting directory lookup failed", "error", err)
		return domain.WorkerInstance{}, apperrors.NewDirectoryLookupError(err).
			WithContext("meeting_id", req.MeetingID)
	}

	spec := s.workerSpec(req, cred)
	instance := domain.WorkerInstance{Name: spec.Name, Image: spec.Image, State: domain.StateAbsent}

	handle, err := s.admitAndCreate(ctx, spec)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.ErrCodeCapacityExceeded {
			log.Infow("stream rejected at capacity", "limit", s.cfg.MaxConcurrentStreams)
		} else {
			log.Errorw("failed to provision stream worker", "worker", spec.Name, "error", err)
		}
		return instance, err
	}
	instance.ID = handle.ID
	instance.State = domain.StateCreated

	if err := s.startInstance(ctx, handle); err != nil {
		log.Errorw("failed to start stream worker", "worker", spec.Name, "error", err)
		if s.cfg.RemoveOnStartFailure {
			s.compensate(handle, log)
		}
		return instance, apperrors.NewStartError(err).WithContext("worker", spec.Name)
	}

	instance.State = domain.StateRunning
	log.Infow("stream started", "worker", spec.Name, "spec", spec.Redacted())
	return instance, nil
}

func (s *streamController) lookup(ctx context.Context, meetingID string) (domain.MeetingCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DirectoryTimeout)
	defer cancel()

	cred, err := s.directory.GetMeetingInfo(ctx, meetingID)
	if err != nil {
		return domain.MeetingCredential{}, err
	}
	if cred.AttendeePassword == "" {
		return domain.MeetingCredential{}, domain.ErrMalformedResponse
	}
	return cred, nil
}

func (s *streamController) workerSpec(req domain.StreamRequest, cred domain.MeetingCredential) domain.WorkerSpec {
	return domain.WorkerSpec{
		Name:        deriveWorkerName(s.cfg.NamePrefix, req.MeetingID),
		Image:       s.cfg.Image,
		Environment: domain.NewWorkerEnvironment(req, cred),
		AutoRemove:  true,
		Binds: []domain.Bind{
			{Source: s.cfg.ControlSocket, Target: s.cfg.ControlSocket},
		},
		Labels: map[string]string{
			LabelMeetingID: req.MeetingID,
		},
	}
}

// admitAndCreate holds the admission guard across list, compare and create
// so concurrent starts cannot jointly exceed the limit.
func (s *streamController) admitAndCreate(ctx context.Context, spec domain.WorkerSpec) (domain.InstanceHandle, error) {
	waitStart := s.now()
	release, err := s.admission.Acquire(ctx)
	s.metrics.ObserveAdmissionWait(s.now().Sub(waitStart).Seconds())
	if err != nil {
		return domain.InstanceHandle{}, apperrors.NewProvisioningError(err, http.StatusServiceUnavailable).
			WithContext("stage", "admission")
	}
	defer release()

	capacity, err := s.capacity(ctx)
	if err != nil {
		return domain.InstanceHandle{}, apperrors.NewProvisioningError(err, http.StatusInternalServerError).
			WithContext("stage", "list")
	}
	tracing.AddSpanAttributes(ctx,
		tracing.LoadKey.Int(capacity.Load),
		tracing.CapacityKey.Int(capacity.Limit),
	)
	if !capacity.Available() {
		return domain.InstanceHandle{}, apperrors.NewCapacityExceededError(capacity.Load, capacity.Limit)
	}

	createCtx, cancel := context.WithTimeout(ctx, s.cfg.RuntimeTimeout)
	defer cancel()

	handle, err := s.runtime.CreateInstance(createCtx, spec)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNameConflict) {
			status = http.StatusConflict
		}
		return domain.InstanceHandle{}, apperrors.NewProvisioningError(err, status).
			WithContext("worker", spec.Name)
	}
	if handle.Name == "" {
		handle.Name = spec.Name
	}

	// The created instance is already visible to the next list call, so
	// the guard can be released before start.
	s.metrics.SetLoad(capacity.Load+1, capacity.Limit)
	return handle, nil
}

func (s *streamController) capacity(ctx context.Context) (domain.Capacity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RuntimeTimeout)
	defer cancel()

	instances, err := s.runtime.ListInstances(ctx, s.cfg.Image)
	if err != nil {
		return domain.Capacity{}, err
	}
	load := 0
	for _, inst := range instances {
		if inst.Image == s.cfg.Image {
			load++
		}
	}
	s.metrics.SetLoad(load, s.cfg.MaxConcurrentStreams)
	return domain.Capacity{Load: load, Limit: s.cfg.MaxConcurrentStreams}, nil
}

func (s *streamController) startInstance(ctx context.Context, handle domain.InstanceHandle) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RuntimeTimeout)
	defer cancel()
	return s.runtime.StartInstance(ctx, handle)
}

// compensate removes a created-but-unstarted worker. It runs on a fresh
// context because the request's may already be done.
func (s *streamController) compensate(handle domain.InstanceHandle, log *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RuntimeTimeout)
	defer cancel()

	if err := s.runtime.RemoveInstance(ctx, handle.Name, true); err != nil && !errors.Is(err, domain.ErrInstanceNotFound) {
		log.Warnw("failed to remove unstarted worker", "worker", handle.Name, "error", err)
		return
	}
	log.Infow("removed unstarted worker", "worker", handle.Name)
}

func (s *streamController) Stop(ctx context.Context, meetingID string) error {
	ctx, span := tracing.TraceStreamOperation(ctx, "stop", meetingID)
	defer span.End()

	if err := validation.ValidateMeetingID(meetingID); err != nil {
		s.metrics.RecordStop(string(apperrors.ErrCodeValidation))
		return apperrors.NewValidationError(err.Error())
	}

	name := deriveWorkerName(s.cfg.NamePrefix, meetingID)
	log := s.logger.With("meeting_id", meetingID, "worker", name)

	removeCtx, cancel := context.WithTimeout(ctx, s.cfg.RuntimeTimeout)
	defer cancel()

	err := s.runtime.RemoveInstance(removeCtx, name, true)
	switch {
	case err == nil:
		log.Infow("stream stopped")
		s.metrics.RecordStop(OutcomeSuccess)
	case errors.Is(err, domain.ErrInstanceNotFound):
		// auto-remove may win the race against an explicit stop
		log.Infow("stream worker already absent")
		s.metrics.RecordStop(OutcomeAbsent)
	default:
		log.Errorw("failed to stop stream worker", "error", err)
		tracing.RecordError(ctx, err)
		s.metrics.RecordStop(string(apperrors.ErrCodeTeardown))
		s.publish(domain.EventFailed, meetingID, name, string(apperrors.ErrCodeTeardown))
		return apperrors.NewTeardownError(err).WithContext("worker", name)
	}

	s.publish(domain.EventStopped, meetingID, name, "")
	return nil
}

func (s *streamController) ListWorkers(ctx context.Context) ([]domain.WorkerInstance, domain.Capacity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RuntimeTimeout)
	defer cancel()

	instances, err := s.runtime.ListInstances(ctx, s.cfg.Image)
	if err != nil {
		return nil, domain.Capacity{}, apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable,
			"failed to list stream workers", http.StatusServiceUnavailable)
	}

	workers := make([]domain.WorkerInstance, 0, len(instances))
	for _, inst := range instances {
		if inst.Image == s.cfg.Image {
			workers = append(workers, inst)
		}
	}
	s.metrics.SetLoad(len(workers), s.cfg.MaxConcurrentStreams)
	return workers, domain.Capacity{Load: len(workers), Limit: s.cfg.MaxConcurrentStreams}, nil
}

func (s *streamController) Ready(ctx context.Context) error {
	if err := s.runtime.Ping(ctx); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable,
			"container runtime unreachable", http.StatusServiceUnavailable)
	}
	return nil
}

func (s *streamController) publish(t domain.StreamEventType, meetingID, worker, reason string) {
	s.events.Publish(domain.StreamEvent{
		Type:       t,
		MeetingID:  meetingID,
		WorkerName: worker,
		Reason:     reason,
		At:         s.now().UTC(),
	})
}

type noopPublisher struct{}

func (noopPublisher) Publish(domain.StreamEvent) {}

type noopMetrics struct{}

func (noopMetrics) RecordStart(string)           {}
func (noopMetrics) RecordStop(string)            {}
func (noopMetrics) SetLoad(int, int)             {}
func (noopMetrics) ObserveAdmissionWait(float64) {}
