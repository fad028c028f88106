package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"feria/internal/registration/models"
	"feria/internal/registration/service"
	dErrors "feria/pkg/domain-errors"
)

const (
	// FieldCertificate is the multipart file field carrying the certificate.
	FieldCertificate = "certificado_manipulacion"

	formOverhead     = 1 << 20
	maxMemoryForForm = 32 << 20
)

// decodeCreate reads a submission either from a multipart form or from a
// plain JSON body. Only the multipart form can carry a certificate.
func (h *Handler) decodeCreate(w http.ResponseWriter, r *http.Request) (service.CreateRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+formOverhead)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return service.CreateRequest{}, dErrors.New(dErrors.CodeBadRequest, "missing or invalid content type")
	}

	switch mediaType {
	case "application/json":
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			return service.CreateRequest{}, bodyError(err)
		}
		return service.CreateRequest{Payload: payload}, nil
	case "multipart/form-data":
		return h.decodeMultipart(r)
	default:
		return service.CreateRequest{}, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("unsupported content type %q", mediaType))
	}
}

func (h *Handler) decodeMultipart(r *http.Request) (service.CreateRequest, error) {
	if err := r.ParseMultipartForm(maxMemoryForForm); err != nil {
		return service.CreateRequest{}, bodyError(err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	values := r.MultipartForm.Value[models.FieldPayload]
	if len(values) == 0 {
		return service.CreateRequest{}, dErrors.NewField(dErrors.CodeValidation, models.FieldPayload,
			models.FieldPayload+" is required")
	}
	req := service.CreateRequest{Payload: []byte(values[0])}

	files := r.MultipartForm.File[FieldCertificate]
	if len(files) == 0 || files[0].Filename == "" {
		return req, nil
	}
	upload, err := h.readCertificate(files[0])
	if err != nil {
		return service.CreateRequest{}, err
	}
	req.Certificate = upload
	return req, nil
}

func (h *Handler) readCertificate(header *multipart.FileHeader) (*service.CertificateUpload, error) {
	if header.Size > h.maxFileSize {
		return nil, dErrors.NewField(dErrors.CodeValidation, FieldCertificate,
			fmt.Sprintf("%s exceeds the maximum size of %d bytes", FieldCertificate, h.maxFileSize))
	}
	file, err := header.Open()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read "+FieldCertificate)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read "+FieldCertificate)
	}
	if int64(len(content)) > h.maxFileSize {
		return nil, dErrors.NewField(dErrors.CodeValidation, FieldCertificate,
			fmt.Sprintf("%s exceeds the maximum size of %d bytes", FieldCertificate, h.maxFileSize))
	}
	return &service.CertificateUpload{Filename: header.Filename, Content: content}, nil
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
	}
	return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
}

// decodeListFilter reads skip, limit and estado. A missing limit means
// models.DefaultListLimit; an explicit limit=0 is honored.
func decodeListFilter(r *http.Request) (models.ListFilter, error) {
	query := r.URL.Query()
	filter := models.ListFilter{Limit: models.DefaultListLimit, State: query.Get("estado")}

	if raw := query.Get("skip"); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil {
			return models.ListFilter{}, dErrors.NewField(dErrors.CodeValidation, "skip", "skip must be an integer")
		}
		filter.Skip = skip
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return models.ListFilter{}, dErrors.NewField(dErrors.CodeValidation, "limit", "limit must be an integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

// UpdateStateRequest is the JSON body form of a state update.
type UpdateStateRequest struct {
	State string `json:"estado"`
}

// decodeTargetState takes estado from the query string, falling back to a
// JSON body.
func decodeTargetState(r *http.Request) (string, error) {
	if target := r.URL.Query().Get("estado"); target != "" {
		return target, nil
	}
	if r.Body != nil && r.ContentLength != 0 {
		var req UpdateStateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return "", dErrors.New(dErrors.CodeBadRequest, "invalid request body")
		}
		if req.State != "" {
			return req.State, nil
		}
	}
	return "", dErrors.NewField(dErrors.CodeValidation, "estado", "estado is required")
}
