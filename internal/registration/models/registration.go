package models

import (
	"time"

	"feria/pkg/document"
	dErrors "feria/pkg/domain-errors"
)

// Registration is a company's fair registration.
//
// Invariants:
//   - TaxID is unique across all registrations (enforced by the store)
//   - State is always one of AllStates()
//   - ID and RegisteredAt are assigned by the store at creation and never change
//   - CertificatePath, when set, names an artifact written before the record
type Registration struct {
	ID              int64
	TaxID           string
	CompanyName     string
	ContactEmail    string
	ContactPhone    string
	State           State
	RegisteredAt    time.Time
	SubmissionData  document.Document
	CertificatePath *string
}

// NewRegistration builds an unsaved registration in the pending state.
func NewRegistration(sub *Submission, certificatePath *string) *Registration {
	return &Registration{
		TaxID:           sub.TaxID,
		CompanyName:     sub.CompanyName,
		ContactEmail:    sub.ContactEmail,
		ContactPhone:    sub.ContactPhone,
		State:           StatePending,
		SubmissionData:  sub.Data,
		CertificatePath: certificatePath,
	}
}

// Clone returns a copy that shares no mutable fields with r.
func (r *Registration) Clone() *Registration {
	c := *r
	if r.CertificatePath != nil {
		p := *r.CertificatePath
		c.CertificatePath = &p
	}
	return &c
}

// Sector returns the nested datos_registro.sector value used for statistics.
func (r *Registration) Sector() string {
	return SectorOf(r.SubmissionData)
}

// SectorMissing is the statistics bucket for submissions without a sector.
const SectorMissing = "missing"

// SectorOf extracts datos_registro.sector as text, or SectorMissing.
func SectorOf(doc document.Document) string {
	node, err := doc.Lookup("datos_registro", "sector")
	if err != nil {
		return SectorMissing
	}
	text, ok := node.Text()
	if !ok {
		return SectorMissing
	}
	return text
}

// DefaultListLimit is the page size used when the caller does not give one.
const DefaultListLimit = 100

// ListFilter selects a page of registrations ordered by ID.
// An empty State matches every record; otherwise it is an exact match.
type ListFilter struct {
	Skip  int
	Limit int
	State string
}

// Validate rejects negative paging values.
func (f ListFilter) Validate() error {
	if f.Skip < 0 {
		return dErrors.NewField(dErrors.CodeValidation, "skip", "skip must be greater than or equal to 0")
	}
	if f.Limit < 0 {
		return dErrors.NewField(dErrors.CodeValidation, "limit", "limit must be greater than or equal to 0")
	}
	return nil
}

// Summary is the aggregate view over all registrations. ByState always sums
// to Total; BySector buckets records without a sector under SectorMissing.
type Summary struct {
	Total    int            `json:"total_registros"`
	ByState  map[string]int `json:"por_estado"`
	BySector map[string]int `json:"por_sector"`
}
