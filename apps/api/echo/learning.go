package echoapi

import (
	"bytes"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/learning"
)

type learningApi struct {
	svc      learning.Service
	validate *validator.Validate
}

func registerLearningAPI(v1, api *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	h := learningApi{
		svc:      deps.LearningSvc,
		validate: deps.Validate,
	}

	api.POST("/lessons/complete", h.completeLesson, jwt)

	eg := v1.Group("/enrollments", jwt)
	eg.GET("", h.queryEnrollments)
	eg.GET("/:id", h.retrieveEnrollment)

	cg := v1.Group("/certificates")
	cg.GET("", h.queryCertificates, jwt)
	// public verification
	cg.GET("/:id", h.retrieveCertificate)
	cg.GET("/:id/image", h.certificateImage)
}

// Handlers

func (h *learningApi) completeLesson(ctx echo.Context) error {
	var data CompleteLessonRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompleteLessonRequest")
	}
	if err := data.Validate(h.validate); err != nil {
		return err
	}

	res, err := h.svc.CompleteLesson(ctx.Request().Context(), contextUserID(ctx), data.EnrollmentID, data.LessonID)
	if err != nil {
		return errors.Wrap(err, "completing lesson")
	}
	return ctx.JSON(http.StatusOK, CompleteLessonResponse{Success: true, CompletionResult: res})
}

func (h *learningApi) queryEnrollments(ctx echo.Context) error {
	enrs, err := h.svc.Enrollments(ctx.Request().Context(), contextUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrs == nil {
		enrs = []learning.EnrollmentDetail{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (h *learningApi) retrieveEnrollment(ctx echo.Context) error {
	enr, err := h.svc.Enrollment(ctx.Request().Context(), contextUserID(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting enrollment")
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (h *learningApi) queryCertificates(ctx echo.Context) error {
	certs, err := h.svc.Certificates(ctx.Request().Context(), contextUserID(ctx))
	if err != nil {
		return errors.Wrap(err, "querying certificates")
	}
	if certs == nil {
		certs = []learning.CertificateDetail{}
	}
	return ctx.JSON(http.StatusOK, certs)
}

func (h *learningApi) retrieveCertificate(ctx echo.Context) error {
	cert, err := h.svc.Certificate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting certificate")
	}
	return ctx.JSON(http.StatusOK, cert)
}

func (h *learningApi) certificateImage(ctx echo.Context) error {
	var buf bytes.Buffer
	if err := h.svc.RenderCertificate(ctx.Request().Context(), &buf, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "rendering certificate")
	}
	ctx.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=86400")
	return ctx.Blob(http.StatusOK, "image/png", buf.Bytes())
}

type (
	CompleteLessonRequest struct {
		EnrollmentID string `json:"enrollmentId" validate:"required"`
		LessonID     string `json:"lessonId" validate:"required"`
	}

	CompleteLessonResponse struct {
		Success bool `json:"success"`
		learning.CompletionResult
	}
)

func (r *CompleteLessonRequest) Validate(validate *validator.Validate) error {
	r.EnrollmentID = core.CleanString(r.EnrollmentID)
	r.LessonID = core.CleanString(r.LessonID)
	return validate.Struct(r)
}
