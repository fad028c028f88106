package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feria/internal/registration/metrics"
	"feria/internal/registration/models"
	dErrors "feria/pkg/domain-errors"
	"feria/pkg/platform/sentinel"
	"feria/pkg/requestcontext"
)

// RegistrationStore persists registrations. Create must reject a second
// record for the same tax id with sentinel.ErrAlreadyUsed.
type RegistrationStore interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByID(ctx context.Context, id int64) (*models.Registration, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Registration, error)
	UpdateState(ctx context.Context, id int64, state models.State) (*models.Registration, error)
	Count(ctx context.Context) (int, error)
	CountByState(ctx context.Context) (map[models.State]int, error)
	CountBySector(ctx context.Context) (map[string]int, error)
}

// CertificateStore writes and removes certificate artifacts.
type CertificateStore interface {
	Save(ctx context.Context, taxID string, content []byte, filename string) (string, error)
	Remove(ctx context.Context, location string) error
}

// StatsCache holds the last computed summary. Every Invalidate bumps a
// generation counter; Set stores a summary only if the generation it was
// computed under is still current, so a summary read before a write can never
// be cached after that write's invalidation.
type StatsCache interface {
	Get(ctx context.Context) (*models.Summary, bool, error)
	Generation(ctx context.Context) (int64, error)
	Set(ctx context.Context, summary *models.Summary, generation int64) error
	Invalidate(ctx context.Context) error
}

// Audit event names.
const (
	EventRegistrationCreated           = "registration_created"
	EventRegistrationStateChanged      = "registration_state_changed"
	EventCertificateCompensated        = "certificate_compensated"
	EventCertificateCompensationFailed = "certificate_compensation_failed"
)

const defaultCompensationTimeout = 10 * time.Second

// Service runs the registration lifecycle: validated two-phase creation with
// certificate compensation, lookups, state updates and statistics.
type Service struct {
	records             RegistrationStore
	certificates        CertificateStore
	cache               StatsCache
	logger              *slog.Logger
	metrics             *metrics.Metrics
	compensationTimeout time.Duration
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithStatsCache enables read-through caching of Stats.
func WithStatsCache(cache StatsCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithCompensationTimeout bounds how long artifact cleanup may take.
func WithCompensationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.compensationTimeout = d
		}
	}
}

// New constructs a Service.
func New(records RegistrationStore, certificates CertificateStore, opts ...Option) (*Service, error) {
	if records == nil {
		return nil, errors.New("registration store is required")
	}
	if certificates == nil {
		return nil, errors.New("certificate store is required")
	}
	s := &Service{
		records:             records,
		certificates:        certificates,
		logger:              slog.Default(),
		compensationTimeout: defaultCompensationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CertificateUpload is the optional file attached to a submission.
type CertificateUpload struct {
	Filename string
	Content  []byte
}

// CreateRequest carries the raw submission payload and optional certificate.
type CreateRequest struct {
	Payload     []byte
	Certificate *CertificateUpload
}

// Create validates the submission, stores the certificate if one was sent and
// then inserts the record. If the insert fails the certificate is removed again
// so no artifact outlives a failed registration.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Registration, error) {
	start := time.Now()
	defer s.observeCreate(start)

	sub, err := models.ParseSubmission(req.Payload)
	if err != nil {
		return nil, err
	}

	var certPath *string
	if req.Certificate != nil {
		location, err := s.certificates.Save(ctx, sub.TaxID, req.Certificate.Content, req.Certificate.Filename)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to store certificate",
				"error", err,
				"nit", sub.TaxID,
				"request_id", requestcontext.RequestID(ctx),
			)
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to store certificate")
		}
		certPath = &location
	}

	reg := models.NewRegistration(sub, certPath)
	if err := s.records.Create(ctx, reg); err != nil {
		if certPath != nil {
			s.compensate(ctx, *certPath)
		}
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			s.incrementDuplicate()
			return nil, dErrors.NewField(dErrors.CodeDuplicateKey, models.FieldTaxID,
				fmt.Sprintf("a registration with nit %s already exists", sub.TaxID))
		}
		s.logger.ErrorContext(ctx, "failed to create registration",
			"error", err,
			"nit", sub.TaxID,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, err.Error())
	}

	s.invalidateStats(ctx)
	s.incrementCreated()
	s.logAudit(ctx, EventRegistrationCreated,
		"registration_id", reg.ID,
		"nit", reg.TaxID,
		"has_certificate", certPath != nil,
	)
	return reg, nil
}

// compensate removes an artifact written for a registration that was not
// persisted. It runs detached from request cancellation so a client hanging up
// mid-insert still gets its artifact cleaned. Failures are logged and counted;
// the caller reports the original error.
func (s *Service) compensate(ctx context.Context, location string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	if err := s.certificates.Remove(cleanupCtx, location); err != nil {
		s.incrementCompensation(metrics.OutcomeFailed)
		s.logger.ErrorContext(ctx, "failed to remove certificate after failed registration",
			"error", err,
			"path", location,
			"event", EventCertificateCompensationFailed,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	s.incrementCompensation(metrics.OutcomeRemoved)
	s.logAudit(ctx, EventCertificateCompensated, "path", location)
}

// Get returns one registration.
func (s *Service) Get(ctx context.Context, id int64) (*models.Registration, error) {
	reg, err := s.records.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound(id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load registration")
	}
	return reg, nil
}

// List returns a page of registrations in id order. A state filter that names
// no known state matches nothing.
func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Registration, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	regs, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list registrations")
	}
	return regs, nil
}

// UpdateState moves a registration to target. Every state may move to every
// other state; an unknown target is rejected before the store is touched.
func (s *Service) UpdateState(ctx context.Context, id int64, target string) (*models.Registration, error) {
	state, err := models.ParseState(target)
	if err != nil {
		return nil, err
	}

	reg, err := s.records.UpdateState(ctx, id, state)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound(id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to update registration state")
	}

	s.invalidateStats(ctx)
	s.incrementStateTransition(state)
	s.logAudit(ctx, EventRegistrationStateChanged,
		"registration_id", id,
		"estado", string(state),
	)
	return reg, nil
}

func notFound(id int64) error {
	return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("registration %d not found", id))
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

func (s *Service) observeCreate(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveCreate(start)
	}
}

func (s *Service) incrementCreated() {
	if s.metrics != nil {
		s.metrics.IncrementCreated()
	}
}

func (s *Service) incrementDuplicate() {
	if s.metrics != nil {
		s.metrics.IncrementDuplicate()
	}
}

func (s *Service) incrementCompensation(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementCompensation(outcome)
	}
}

func (s *Service) incrementStateTransition(state models.State) {
	if s.metrics != nil {
		s.metrics.IncrementStateTransition(string(state))
	}
}
