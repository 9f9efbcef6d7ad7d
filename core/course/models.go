package course

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/StephenSouth13/moveup/core"
)

type Course struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Instructor    string          `json:"instructor"`
	Level         string          `json:"level"`
	ThumbnailURL  string          `json:"thumbnail_url"`
	Price         decimal.Decimal `json:"price"`
	TotalLessons  int             `json:"total_lessons"`
	DurationHours int             `json:"duration_hours"`
	IsPublished   bool            `json:"is_published"`
	CreatedAt     time.Time       `json:"created_at"` // UTC
	UpdatedAt     time.Time       `json:"updated_at"` // UTC
}

type Lesson struct {
	ID              string    `json:"id"`
	CourseID        string    `json:"course_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	VideoURL        string    `json:"video_url"`
	DurationMinutes int       `json:"duration_minutes"`
	Order           int       `json:"order"`
	CreatedAt       time.Time `json:"created_at"` // UTC
}

// Detail is a Course with its lessons ordered by Lesson.Order.
type Detail struct {
	Course
	Lessons []Lesson `json:"lessons"`
}

type NewCourse struct {
	Title         string          `json:"title" validate:"required,max=255"`
	Description   string          `json:"description"`
	Instructor    string          `json:"instructor" validate:"max=255"`
	Level         string          `json:"level" validate:"max=32"`
	ThumbnailURL  string          `json:"thumbnail_url" validate:"omitempty,url"`
	Price         decimal.Decimal `json:"price" validate:"dgte0"`
	DurationHours int             `json:"duration_hours" validate:"gte=0"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Instructor = core.CleanString(nc.Instructor)
	nc.Level = core.CleanString(nc.Level)
	nc.ThumbnailURL = core.CleanString(nc.ThumbnailURL)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
// Empty fields keep their original value.
type UpdateCourse struct {
	Title         string           `json:"title" validate:"max=255"`
	Description   string           `json:"description"`
	Instructor    string           `json:"instructor" validate:"max=255"`
	Level         string           `json:"level" validate:"max=32"`
	ThumbnailURL  string           `json:"thumbnail_url" validate:"omitempty,url"`
	Price         *decimal.Decimal `json:"price"`
	DurationHours *int             `json:"duration_hours" validate:"omitempty,gte=0"`
}

func (uc *UpdateCourse) Validate(orig Course, validate *validator.Validate) error {
	keep := func(val *string, origVal string) {
		if s := core.CleanString(*val); s != "" {
			*val = s
		} else {
			*val = origVal
		}
	}
	keep(&uc.Title, orig.Title)
	keep(&uc.Description, orig.Description)
	keep(&uc.Instructor, orig.Instructor)
	keep(&uc.Level, orig.Level)
	keep(&uc.ThumbnailURL, orig.ThumbnailURL)
	if uc.Price == nil {
		uc.Price = &orig.Price
	} else if uc.Price.IsNegative() {
		return core.NewValidationError(nil, core.FieldError{Field: "price", Error: "must be greater than or equal to 0"})
	}
	if uc.DurationHours == nil {
		uc.DurationHours = &orig.DurationHours
	}
	return validate.Struct(uc)
}

type NewLesson struct {
	Title           string `json:"title" validate:"required,max=255"`
	Description     string `json:"description"`
	VideoURL        string `json:"video_url" validate:"omitempty,url"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
	Order           int    `json:"order" validate:"gte=0"` // 0: append after the last lesson
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Description = core.CleanString(nl.Description)
	nl.VideoURL = core.CleanString(nl.VideoURL)
	return validate.Struct(nl)
}

type QueryFilter struct {
	Search      string `query:"search"`
	Level       string `query:"level"`
	IsPublished *bool  `query:"is_published"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Level = core.CleanString(qf.Level)
}
