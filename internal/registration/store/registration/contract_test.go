package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"feria/internal/registration/models"
	"feria/pkg/document"
	"feria/pkg/platform/sentinel"
)

// recordStore is the behavior every registration store must provide.
type recordStore interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByID(ctx context.Context, id int64) (*models.Registration, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Registration, error)
	UpdateState(ctx context.Context, id int64, state models.State) (*models.Registration, error)
	Count(ctx context.Context) (int, error)
	CountByState(ctx context.Context) (map[models.State]int, error)
	CountBySector(ctx context.Context) (map[string]int, error)
}

var (
	_ recordStore = (*InMemoryStore)(nil)
	_ recordStore = (*SQLStore)(nil)
)

// StoreContractSuite runs the same behavioral checks against each backend.
// Embedding suites provide newStore.
type StoreContractSuite struct {
	suite.Suite
	ctx      context.Context
	store    recordStore
	newStore func() recordStore
}

func (s *StoreContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func newRegistration(taxID, sector string) *models.Registration {
	payload := fmt.Sprintf(`{"nit":%q,"nombre_empresa":"Acme SAS","email_contacto":"a@b.co","telefono_contacto":"3001234567","datos_registro":{"sector":%q}}`, taxID, sector)
	if sector == "" {
		payload = fmt.Sprintf(`{"nit":%q,"nombre_empresa":"Acme SAS","email_contacto":"a@b.co","telefono_contacto":"3001234567"}`, taxID)
	}
	return &models.Registration{
		TaxID:          taxID,
		CompanyName:    "Acme SAS",
		ContactEmail:   "a@b.co",
		ContactPhone:   "3001234567",
		State:          models.StatePending,
		SubmissionData: document.MustParse(payload),
	}
}

func (s *StoreContractSuite) TestCreateAndFind() {
	s.Run("assigns id and timestamp", func() {
		path := "files/900123456_20240101_120000.pdf"
		reg := newRegistration("900123456", "tech")
		reg.CertificatePath = &path

		s.Require().NoError(s.store.Create(s.ctx, reg))
		s.Positive(reg.ID)
		s.False(reg.RegisteredAt.IsZero())

		found, err := s.store.FindByID(s.ctx, reg.ID)
		s.Require().NoError(err)
		s.Equal("900123456", found.TaxID)
		s.Equal(models.StatePending, found.State)
		s.Require().NotNil(found.CertificatePath)
		s.Equal(path, *found.CertificatePath)
		s.Equal("tech", found.Sector())

		want, err := reg.SubmissionData.MarshalJSON()
		s.Require().NoError(err)
		got, err := found.SubmissionData.MarshalJSON()
		s.Require().NoError(err)
		s.JSONEq(string(want), string(got))
	})

	s.Run("missing id", func() {
		_, err := s.store.FindByID(s.ctx, 9999)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("ids increase", func() {
		a := newRegistration("111111", "")
		b := newRegistration("222222", "")
		s.Require().NoError(s.store.Create(s.ctx, a))
		s.Require().NoError(s.store.Create(s.ctx, b))
		s.Greater(b.ID, a.ID)
		s.False(b.RegisteredAt.Before(a.RegisteredAt))
	})
}

func (s *StoreContractSuite) TestDuplicateTaxID() {
	s.Require().NoError(s.store.Create(s.ctx, newRegistration("900123456", "tech")))

	err := s.store.Create(s.ctx, newRegistration("900123456", "agro"))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *StoreContractSuite) TestConcurrentCreateSameTaxID() {
	const workers = 50
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		dupes     atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.store.Create(s.ctx, newRegistration("900123456", "tech"))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				dupes.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), succeeded.Load())
	s.Equal(int32(workers-1), dupes.Load())

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *StoreContractSuite) TestList() {
	for i := 1; i <= 5; i++ {
		s.Require().NoError(s.store.Create(s.ctx, newRegistration(fmt.Sprintf("90000000%d", i), "tech")))
	}
	_, err := s.store.UpdateState(s.ctx, 2, models.StateApproved)
	s.Require().NoError(err)
	_, err = s.store.UpdateState(s.ctx, 4, models.StateApproved)
	s.Require().NoError(err)

	s.Run("page in id order", func() {
		page, err := s.store.List(s.ctx, models.ListFilter{Skip: 1, Limit: 2})
		s.Require().NoError(err)
		s.Require().Len(page, 2)
		s.Equal(int64(2), page[0].ID)
		s.Equal(int64(3), page[1].ID)
	})

	s.Run("state filter", func() {
		page, err := s.store.List(s.ctx, models.ListFilter{Limit: 100, State: "approved"})
		s.Require().NoError(err)
		s.Require().Len(page, 2)
		s.Equal(int64(2), page[0].ID)
		s.Equal(int64(4), page[1].ID)
	})

	s.Run("unknown state matches nothing", func() {
		page, err := s.store.List(s.ctx, models.ListFilter{Limit: 100, State: "archived"})
		s.Require().NoError(err)
		s.NotNil(page)
		s.Empty(page)
	})

	s.Run("skip past end", func() {
		page, err := s.store.List(s.ctx, models.ListFilter{Skip: 10, Limit: 100})
		s.Require().NoError(err)
		s.Empty(page)
	})

	s.Run("zero limit", func() {
		page, err := s.store.List(s.ctx, models.ListFilter{Limit: 0})
		s.Require().NoError(err)
		s.Empty(page)
	})
}

func (s *StoreContractSuite) TestUpdateState() {
	reg := newRegistration("900123456", "tech")
	s.Require().NoError(s.store.Create(s.ctx, reg))

	s.Run("any transition is allowed", func() {
		for _, st := range []models.State{models.StateApproved, models.StateRejected, models.StatePending, models.StatePending} {
			updated, err := s.store.UpdateState(s.ctx, reg.ID, st)
			s.Require().NoError(err)
			s.Equal(st, updated.State)
			s.Equal(reg.RegisteredAt.Unix(), updated.RegisteredAt.Unix())
		}
	})

	s.Run("missing id", func() {
		_, err := s.store.UpdateState(s.ctx, 9999, models.StateApproved)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *StoreContractSuite) TestCounts() {
	s.Require().NoError(s.store.Create(s.ctx, newRegistration("100001", "tech")))
	s.Require().NoError(s.store.Create(s.ctx, newRegistration("100002", "tech")))
	s.Require().NoError(s.store.Create(s.ctx, newRegistration("100003", "agro")))
	s.Require().NoError(s.store.Create(s.ctx, newRegistration("100004", "")))
	_, err := s.store.UpdateState(s.ctx, 3, models.StateRejected)
	s.Require().NoError(err)

	total, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(4, total)

	byState, err := s.store.CountByState(s.ctx)
	s.Require().NoError(err)
	s.Equal(map[models.State]int{models.StatePending: 3, models.StateRejected: 1}, byState)

	bySector, err := s.store.CountBySector(s.ctx)
	s.Require().NoError(err)
	s.Equal(map[string]int{"tech": 2, "agro": 1, models.SectorMissing: 1}, bySector)
}

func (s *StoreContractSuite) TestLongValuesAreStoredWhole() {
	taxID := strings.Repeat("9", 300)
	path := "files/" + strings.Repeat("x", 600) + ".pdf"
	reg := newRegistration(taxID, "tech")
	reg.CompanyName = strings.Repeat("Acme ", 60)
	reg.CertificatePath = &path
	s.Require().NoError(s.store.Create(s.ctx, reg))

	found, err := s.store.FindByID(s.ctx, reg.ID)
	s.Require().NoError(err)
	s.Equal(taxID, found.TaxID)
	s.Equal(reg.CompanyName, found.CompanyName)
	s.Require().NotNil(found.CertificatePath)
	s.Equal(path, *found.CertificatePath)
}

func (s *StoreContractSuite) TestBooleanSectorBuckets() {
	for i, raw := range []string{
		`{"datos_registro":{"sector":true}}`,
		`{"datos_registro":{"sector":false}}`,
		`{"datos_registro":{"sector":"true"}}`,
	} {
		reg := newRegistration(fmt.Sprintf("30000%d", i), "")
		reg.SubmissionData = document.MustParse(raw)
		s.Require().NoError(s.store.Create(s.ctx, reg))
	}

	bySector, err := s.store.CountBySector(s.ctx)
	s.Require().NoError(err)
	s.Equal(map[string]int{"true": 2, "false": 1}, bySector)
}

// monotonicClock returns a clock that advances one second per call.
func monotonicClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}
