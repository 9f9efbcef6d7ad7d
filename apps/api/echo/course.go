package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/StephenSouth13/moveup/core/course"
)

type courseApi struct {
	svc      course.Service
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, jwt, optionalJwt echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{
		svc:      deps.CourseSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/courses")

	// catalog: admins also see unpublished courses
	cg.GET("", api.query, optionalJwt)
	cg.GET("/:id", api.retrieve, optionalJwt)

	// back-office
	ag := cg.Group("", jwt, adminMiddleware())
	ag.POST("", api.create)
	ag.PUT("/:id", api.update)
	ag.PUT("/:id/publish", api.publish)
	ag.POST("/:id/lessons", api.addLesson)
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	if !contextIsAdmin(ctx) {
		published := true
		filter.IsPublished = &published
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	crs, err := api.svc.GetDetail(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	if !crs.IsPublished && !contextIsAdmin(ctx) {
		return course.ErrNotFound
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	crs, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) update(ctx echo.Context) error {
	orig, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}

	var data course.UpdateCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err = data.Validate(orig, api.validate); err != nil {
		return err
	}

	crs, err := api.svc.Update(ctx.Request().Context(), orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) publish(ctx echo.Context) error {
	var data PublishRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PublishRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	crs, err := api.svc.SetPublished(ctx.Request().Context(), ctx.Param("id"), *data.IsPublished)
	if err != nil {
		return errors.Wrap(err, "publishing course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) addLesson(ctx echo.Context) error {
	var data course.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lsn, err := api.svc.AddLesson(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding lesson")
	}
	return ctx.JSON(http.StatusCreated, lsn)
}

type PublishRequest struct {
	IsPublished *bool `json:"is_published" validate:"required"`
}
