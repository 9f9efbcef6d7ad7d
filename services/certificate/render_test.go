package certsvc

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/learning"
)

func TestPNGRenderer_RenderPNG(t *testing.T) {
	r, err := NewPNGRenderer(core.NewTestConfig())
	require.NoError(t, err)

	issued := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	detail := learning.CertificateDetail{
		Certificate: learning.Certificate{
			ID:         "cert-1",
			Number:     "CERT-20240301-0123456789AB",
			IssuedAt:   issued,
			ValidUntil: issued.Add(learning.CertificateValidity),
		},
		LearnerName: "Linh Tran",
		CourseTitle: "Go for Backend Engineers: Concurrency, Testing and Production Services",
	}

	var buf bytes.Buffer
	require.NoError(t, r.RenderPNG(&buf, detail))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, width, img.Bounds().Dx())
	assert.Equal(t, height, img.Bounds().Dy())
}
