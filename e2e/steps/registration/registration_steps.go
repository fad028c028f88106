package registration

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	PATCH(path string, body interface{}) error
	POSTMultipart(path string, fields map[string]string, fileField, filename string, content []byte) error
	StatusCode() int
	ResponseBody() []byte
	GetResponseField(field string) (interface{}, error)
}

// RegisterSteps registers registration-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrationSteps{tc: tc}

	ctx.Step(`^a new company "([^"]*)"$`, steps.newCompany)
	ctx.Step(`^I register the company$`, steps.registerCompany)
	ctx.Step(`^I register the company with certificate "([^"]*)"$`, steps.registerCompanyWithCertificate)
	ctx.Step(`^I register the company with email "([^"]*)"$`, steps.registerCompanyWithEmail)
	ctx.Step(`^I save the registration id$`, steps.saveRegistrationID)
	ctx.Step(`^I fetch the registration$`, steps.fetchRegistration)
	ctx.Step(`^I set the registration state to "([^"]*)"$`, steps.setState)
	ctx.Step(`^I request the statistics summary$`, steps.requestStats)

	ctx.Step(`^the registration should have a certificate path$`, steps.shouldHaveCertificatePath)
	ctx.Step(`^the statistics should be consistent$`, steps.statisticsShouldBeConsistent)
}

type registrationSteps struct {
	tc TestContext

	taxID   string
	company string
	id      int64
}

func (s *registrationSteps) newCompany(ctx context.Context, name string) error {
	// unique per run so scenarios can be replayed against the same database
	s.taxID = strconv.FormatInt(time.Now().UnixNano(), 10)
	s.company = name
	s.id = 0
	return nil
}

func (s *registrationSteps) payload(email string) (string, error) {
	body := map[string]interface{}{
		"nit":               s.taxID,
		"nombre_empresa":    s.company,
		"email_contacto":    email,
		"telefono_contacto": "3001234567",
		"datos_registro":    map[string]string{"sector": "alimentos"},
	}
	b, err := json.Marshal(body)
	return string(b), err
}

func (s *registrationSteps) register(email, filename string, content []byte) error {
	payload, err := s.payload(email)
	if err != nil {
		return err
	}
	return s.tc.POSTMultipart("/registros/", map[string]string{"datos_registro": payload},
		"certificado_manipulacion", filename, content)
}

func (s *registrationSteps) registerCompany(ctx context.Context) error {
	return s.register("contacto@empresa.co", "", nil)
}

func (s *registrationSteps) registerCompanyWithCertificate(ctx context.Context, filename string) error {
	return s.register("contacto@empresa.co", filename, []byte("%PDF-1.4 e2e"))
}

func (s *registrationSteps) registerCompanyWithEmail(ctx context.Context, email string) error {
	return s.register(email, "", nil)
}

func (s *registrationSteps) saveRegistrationID(ctx context.Context) error {
	value, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	id, ok := value.(float64)
	if !ok {
		return fmt.Errorf("id is not a number: %v", value)
	}
	s.id = int64(id)
	return nil
}

func (s *registrationSteps) fetchRegistration(ctx context.Context) error {
	return s.tc.GET(fmt.Sprintf("/registros/%d", s.id), nil)
}

func (s *registrationSteps) setState(ctx context.Context, state string) error {
	return s.tc.PATCH(fmt.Sprintf("/registros/%d/estado", s.id), map[string]string{"estado": state})
}

func (s *registrationSteps) requestStats(ctx context.Context) error {
	return s.tc.GET("/registros/estadisticas/resumen", nil)
}

func (s *registrationSteps) shouldHaveCertificatePath(ctx context.Context) error {
	value, err := s.tc.GetResponseField("ruta_certificado")
	if err != nil {
		return err
	}
	if path, ok := value.(string); !ok || path == "" {
		return fmt.Errorf("expected ruta_certificado to be set, got %v", value)
	}
	return nil
}

func (s *registrationSteps) statisticsShouldBeConsistent(ctx context.Context) error {
	var summary struct {
		Total    int            `json:"total_registros"`
		ByState  map[string]int `json:"por_estado"`
		BySector map[string]int `json:"por_sector"`
	}
	if err := json.Unmarshal(s.tc.ResponseBody(), &summary); err != nil {
		return err
	}
	sum := 0
	for _, n := range summary.ByState {
		sum += n
	}
	if sum != summary.Total {
		return fmt.Errorf("por_estado sums to %d but total_registros is %d", sum, summary.Total)
	}
	if summary.BySector["alimentos"] < 1 {
		return fmt.Errorf("expected at least one registration in sector alimentos, got %v", summary.BySector)
	}
	return nil
}
