package registration

import (
	"log/slog"

	"feria/internal/registration/handler"
	"feria/internal/registration/service"
)

// Service exposes the registration lifecycle and statistics.
type Service = service.Service

// Handler wires HTTP endpoints to the registration service.
type Handler = handler.Handler

// NewService constructs the registration service with its stores.
func NewService(records service.RegistrationStore, certificates service.CertificateStore, opts ...service.Option) (*Service, error) {
	return service.New(records, certificates, opts...)
}

// NewHandler constructs the /registros HTTP handler.
func NewHandler(s *Service, logger *slog.Logger, maxFileSize int64) *Handler {
	return handler.New(s, logger, maxFileSize)
}
