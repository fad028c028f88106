package handler

import (
	"time"

	"feria/internal/registration/models"
	"feria/pkg/document"
)

// RegistrationResponse is the wire form of a registration.
type RegistrationResponse struct {
	ID              int64             `json:"id"`
	TaxID           string            `json:"nit"`
	CompanyName     string            `json:"nombre_empresa"`
	ContactEmail    string            `json:"email_contacto"`
	ContactPhone    string            `json:"telefono_contacto"`
	State           string            `json:"estado"`
	RegisteredAt    time.Time         `json:"fecha_registro"`
	SubmissionData  document.Document `json:"datos_registro"`
	CertificatePath *string           `json:"ruta_certificado"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func toRegistrationResponse(reg *models.Registration) RegistrationResponse {
	return RegistrationResponse{
		ID:              reg.ID,
		TaxID:           reg.TaxID,
		CompanyName:     reg.CompanyName,
		ContactEmail:    reg.ContactEmail,
		ContactPhone:    reg.ContactPhone,
		State:           string(reg.State),
		RegisteredAt:    reg.RegisteredAt,
		SubmissionData:  reg.SubmissionData,
		CertificatePath: reg.CertificatePath,
	}
}

func toRegistrationResponses(regs []*models.Registration) []RegistrationResponse {
	out := make([]RegistrationResponse, 0, len(regs))
	for _, reg := range regs {
		out = append(out, toRegistrationResponse(reg))
	}
	return out
}
