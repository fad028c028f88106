package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks RegistrationStore,CertificateStore,StatsCache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"feria/internal/registration/metrics"
	"feria/internal/registration/models"
	"feria/internal/registration/service/mocks"
	dErrors "feria/pkg/domain-errors"
	"feria/pkg/platform/sentinel"
)

const validPayload = `{"nit":"900123456","nombre_empresa":"Acme SAS","email_contacto":"a@b.co","telefono_contacto":"3001234567","datos_registro":{"sector":"tech"}}`

type ServiceSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	records *mocks.MockRegistrationStore
	certs   *mocks.MockCertificateStore
	cache   *mocks.MockStatsCache
	metrics *metrics.Metrics
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.records = mocks.NewMockRegistrationStore(s.ctrl)
	s.certs = mocks.NewMockCertificateStore(s.ctrl)
	s.cache = mocks.NewMockStatsCache(s.ctrl)
	s.metrics = metrics.NewWithRegistry(prometheus.NewRegistry())
	s.ctx = context.Background()

	svc, err := New(s.records, s.certs,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithStatsCache(s.cache),
		WithCompensationTimeout(time.Second),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func withCert() *CertificateUpload {
	return &CertificateUpload{Filename: "cert.pdf", Content: []byte("%PDF-1.4")}
}

func (s *ServiceSuite) TestNew() {
	s.Run("nil registration store returns error", func() {
		_, err := New(nil, s.certs)
		s.ErrorContains(err, "registration store is required")
	})

	s.Run("nil certificate store returns error", func() {
		_, err := New(s.records, nil)
		s.ErrorContains(err, "certificate store is required")
	})

	s.Run("options are applied", func() {
		svc, err := New(s.records, s.certs, WithCompensationTimeout(3*time.Second))
		s.Require().NoError(err)
		s.Equal(3*time.Second, svc.compensationTimeout)
		s.Nil(svc.cache)
	})
}

func (s *ServiceSuite) TestCreate() {
	s.Run("invalid submission has no side effects", func() {
		_, err := s.service.Create(s.ctx, CreateRequest{
			Payload:     []byte(`{"nit":"12","nombre_empresa":"Acme SAS","email_contacto":"a@b.co","telefono_contacto":"3001234567"}`),
			Certificate: withCert(),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(models.FieldTaxID, dErrors.FieldOf(err))
	})

	s.Run("without certificate", func() {
		s.records.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, reg *models.Registration) error {
				s.Nil(reg.CertificatePath)
				s.Equal(models.StatePending, reg.State)
				reg.ID = 1
				return nil
			})
		s.cache.EXPECT().Invalidate(gomock.Any()).Return(nil)

		reg, err := s.service.Create(s.ctx, CreateRequest{Payload: []byte(validPayload)})
		s.Require().NoError(err)
		s.Equal(int64(1), reg.ID)
		s.Equal("900123456", reg.TaxID)
	})

	s.Run("with certificate records its path", func() {
		s.certs.EXPECT().Save(gomock.Any(), "900123456", []byte("%PDF-1.4"), "cert.pdf").Return("files/900123456_x.pdf", nil)
		s.records.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, reg *models.Registration) error {
				s.Require().NotNil(reg.CertificatePath)
				s.Equal("files/900123456_x.pdf", *reg.CertificatePath)
				reg.ID = 2
				return nil
			})
		s.cache.EXPECT().Invalidate(gomock.Any()).Return(errors.New("redis down"))

		reg, err := s.service.Create(s.ctx, CreateRequest{Payload: []byte(validPayload), Certificate: withCert()})
		s.Require().NoError(err)
		s.Equal(int64(2), reg.ID)
	})

	s.Run("certificate failure stops before the insert", func() {
		s.certs.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("disk full"))

		_, err := s.service.Create(s.ctx, CreateRequest{Payload: []byte(validPayload), Certificate: withCert()})
		s.True(dErrors.HasCode(err, dErrors.CodeStorage))
	})

	s.Run("duplicate removes the artifact", func() {
		s.certs.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("files/dup.pdf", nil)
		s.records.EXPECT().Create(gomock.Any(), gomock.Any()).Return(fmt.Errorf("insert: %w", sentinel.ErrAlreadyUsed))
		s.certs.EXPECT().Remove(gomock.Any(), "files/dup.pdf").Return(nil)

		_, err := s.service.Create(s.ctx, CreateRequest{Payload: []byte(validPayload), Certificate: withCert()})
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateKey))
		s.Equal(models.FieldTaxID, dErrors.FieldOf(err))
		s.Contains(err.Error(), "900123456")
	})

	s.Run("other store error removes the artifact and keeps the message", func() {
		s.certs.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("files/other.pdf", nil)
		s.records.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))
		s.certs.EXPECT().Remove(gomock.Any(), "files/other.pdf").Return(nil)

		_, err := s.service.Create(s.ctx, CreateRequest{Payload: []byte(validPayload), Certificate: withCert()})
		s.True(dErrors.HasCode(err, dErrors.CodeStorage))
		s.Contains(err.Error(), "connection reset")
	})
}

func (s *ServiceSuite) TestCompensation() {
	s.Run("failed cleanup still reports the original error", func() {
		s.certs.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("files/a.pdf", nil)
		s.records.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyUsed)
		s.certs.EXPECT().Remove(gomock.Any(), "files/a.pdf").Return(errors.New("permission denied"))

		_, err := s.service.Create(s.ctx, CreateRequest{Payload: []byte(validPayload), Certificate: withCert()})
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateKey))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Compensations.WithLabelValues(metrics.OutcomeFailed)))
	})

	s.Run("cleanup survives request cancellation", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		s.certs.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("files/b.pdf", nil)
		s.records.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, *models.Registration) error {
				cancel()
				return context.Canceled
			})
		s.certs.EXPECT().Remove(gomock.Any(), "files/b.pdf").DoAndReturn(
			func(ctx context.Context, _ string) error {
				s.NoError(ctx.Err())
				_, hasDeadline := ctx.Deadline()
				s.True(hasDeadline)
				return nil
			})

		_, err := s.service.Create(ctx, CreateRequest{Payload: []byte(validPayload), Certificate: withCert()})
		s.Error(err)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.Compensations.WithLabelValues(metrics.OutcomeRemoved)))
	})
}

func (s *ServiceSuite) TestGet() {
	s.Run("found", func() {
		s.records.EXPECT().FindByID(gomock.Any(), int64(7)).Return(&models.Registration{ID: 7}, nil)
		reg, err := s.service.Get(s.ctx, 7)
		s.Require().NoError(err)
		s.Equal(int64(7), reg.ID)
	})

	s.Run("not found", func() {
		s.records.EXPECT().FindByID(gomock.Any(), int64(8)).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Get(s.ctx, 8)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("store failure", func() {
		s.records.EXPECT().FindByID(gomock.Any(), int64(9)).Return(nil, errors.New("timeout"))
		_, err := s.service.Get(s.ctx, 9)
		s.True(dErrors.HasCode(err, dErrors.CodeStorage))
	})
}

func (s *ServiceSuite) TestList() {
	s.Run("passes the filter through", func() {
		filter := models.ListFilter{Skip: 5, Limit: 10, State: "approved"}
		s.records.EXPECT().List(gomock.Any(), filter).Return([]*models.Registration{{ID: 6}}, nil)
		regs, err := s.service.List(s.ctx, filter)
		s.Require().NoError(err)
		s.Len(regs, 1)
	})

	s.Run("negative paging is rejected", func() {
		_, err := s.service.List(s.ctx, models.ListFilter{Skip: -1, Limit: 10})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestUpdateState() {
	s.Run("invalid target never reaches the store", func() {
		_, err := s.service.UpdateState(s.ctx, 1, "archived")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown id", func() {
		s.records.EXPECT().UpdateState(gomock.Any(), int64(99), models.StateApproved).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.UpdateState(s.ctx, 99, "approved")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("success invalidates statistics", func() {
		s.records.EXPECT().UpdateState(gomock.Any(), int64(1), models.StateRejected).
			Return(&models.Registration{ID: 1, State: models.StateRejected}, nil)
		s.cache.EXPECT().Invalidate(gomock.Any()).Return(nil)

		reg, err := s.service.UpdateState(s.ctx, 1, "rejected")
		s.Require().NoError(err)
		s.Equal(models.StateRejected, reg.State)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.StateTransitions.WithLabelValues("rejected")))
	})
}

func (s *ServiceSuite) expectAggregates(total int, byState map[models.State]int, bySector map[string]int) {
	s.records.EXPECT().Count(gomock.Any()).Return(total, nil)
	s.records.EXPECT().CountByState(gomock.Any()).Return(byState, nil)
	s.records.EXPECT().CountBySector(gomock.Any()).Return(bySector, nil)
}

func (s *ServiceSuite) TestStats() {
	s.Run("cache miss computes and stores under the generation read first", func() {
		s.cache.EXPECT().Get(gomock.Any()).Return(nil, false, nil)
		s.cache.EXPECT().Generation(gomock.Any()).Return(int64(4), nil)
		s.expectAggregates(3,
			map[models.State]int{models.StatePending: 2, models.StateApproved: 1},
			map[string]int{"tech": 2, models.SectorMissing: 1})
		s.cache.EXPECT().Set(gomock.Any(), gomock.Any(), int64(4)).Return(nil)

		summary, err := s.service.Stats(s.ctx)
		s.Require().NoError(err)
		s.Equal(3, summary.Total)
		s.Equal(map[string]int{"pending": 2, "approved": 1}, summary.ByState)
		s.Equal(map[string]int{"tech": 2, "missing": 1}, summary.BySector)
	})

	s.Run("cache hit skips the store", func() {
		cached := &models.Summary{Total: 1, ByState: map[string]int{"pending": 1}, BySector: map[string]int{"tech": 1}}
		s.cache.EXPECT().Get(gomock.Any()).Return(cached, true, nil)

		summary, err := s.service.Stats(s.ctx)
		s.Require().NoError(err)
		s.Equal(cached, summary)
	})

	s.Run("cache errors fall back to the store", func() {
		s.cache.EXPECT().Get(gomock.Any()).Return(nil, false, errors.New("redis down"))
		s.cache.EXPECT().Generation(gomock.Any()).Return(int64(0), nil)
		s.expectAggregates(0, map[models.State]int{}, nil)
		s.cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

		summary, err := s.service.Stats(s.ctx)
		s.Require().NoError(err)
		s.Equal(0, summary.Total)
		s.NotNil(summary.BySector)
	})

	s.Run("unknown generation skips caching", func() {
		s.cache.EXPECT().Get(gomock.Any()).Return(nil, false, nil)
		s.cache.EXPECT().Generation(gomock.Any()).Return(int64(0), errors.New("redis down"))
		s.expectAggregates(1, map[models.State]int{models.StatePending: 1}, map[string]int{"tech": 1})

		summary, err := s.service.Stats(s.ctx)
		s.Require().NoError(err)
		s.Equal(1, summary.Total)
	})

	s.Run("a write between queries triggers a recount", func() {
		s.cache.EXPECT().Get(gomock.Any()).Return(nil, false, nil)
		s.cache.EXPECT().Generation(gomock.Any()).Return(int64(0), nil)
		s.expectAggregates(2, map[models.State]int{models.StatePending: 1}, map[string]int{"tech": 1})
		s.expectAggregates(2, map[models.State]int{models.StatePending: 2}, map[string]int{"tech": 2})
		s.cache.EXPECT().Set(gomock.Any(), gomock.Any(), int64(0)).Return(nil)

		summary, err := s.service.Stats(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, summary.Total)
		s.Equal(2, summary.ByState["pending"])
	})

	s.Run("a sector breakdown missing a record triggers a recount", func() {
		s.cache.EXPECT().Get(gomock.Any()).Return(nil, false, nil)
		s.cache.EXPECT().Generation(gomock.Any()).Return(int64(0), nil)
		s.expectAggregates(1, map[models.State]int{models.StatePending: 1}, map[string]int{})
		s.expectAggregates(1, map[models.State]int{models.StatePending: 1}, map[string]int{"tech": 1})
		s.cache.EXPECT().Set(gomock.Any(), gomock.Any(), int64(0)).Return(nil)

		summary, err := s.service.Stats(s.ctx)
		s.Require().NoError(err)
		s.Equal(map[string]int{"tech": 1}, summary.BySector)
	})

	s.Run("store failure", func() {
		s.cache.EXPECT().Get(gomock.Any()).Return(nil, false, nil)
		s.cache.EXPECT().Generation(gomock.Any()).Return(int64(0), nil)
		s.records.EXPECT().Count(gomock.Any()).Return(0, errors.New("timeout"))
		s.records.EXPECT().CountByState(gomock.Any()).Return(map[models.State]int{}, nil).AnyTimes()
		s.records.EXPECT().CountBySector(gomock.Any()).Return(map[string]int{}, nil).AnyTimes()

		_, err := s.service.Stats(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeStorage))
	})
}
