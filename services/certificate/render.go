package certsvc

import (
	"io"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/learning"
)

const (
	width  = 1600
	height = 1130
	margin = 48.0

	dateLayout = "January 2, 2006"
)

// PNGRenderer draws certificates with the embedded Go fonts.
type PNGRenderer struct {
	appName string
	regular *truetype.Font
	bold    *truetype.Font
}

var _ learning.CertificateRenderer = (*PNGRenderer)(nil) // interface compliance check

func NewPNGRenderer(conf *core.Config) (*PNGRenderer, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, errors.Wrap(err, "parsing regular font")
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, errors.Wrap(err, "parsing bold font")
	}
	return &PNGRenderer{appName: conf.AppName, regular: regular, bold: bold}, nil
}

// faces are stateful, so each render gets its own
func face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone})
}

func (r *PNGRenderer) RenderPNG(w io.Writer, cert learning.CertificateDetail) error {
	dc := gg.NewContext(width, height)
	cx := float64(width) / 2

	dc.SetRGB(1, 1, 1)
	dc.Clear()

	// frame
	dc.SetRGB255(27, 67, 122)
	dc.SetLineWidth(10)
	dc.DrawRectangle(margin, margin, width-2*margin, height-2*margin)
	dc.Stroke()
	dc.SetLineWidth(2)
	dc.DrawRectangle(margin+18, margin+18, width-2*margin-36, height-2*margin-36)
	dc.Stroke()

	dc.SetFontFace(face(r.bold, 40))
	dc.DrawStringAnchored(r.appName, cx, 190, 0.5, 0.5)

	dc.SetFontFace(face(r.bold, 72))
	dc.DrawStringAnchored("Certificate of Completion", cx, 300, 0.5, 0.5)

	dc.SetRGB255(60, 60, 60)
	dc.SetFontFace(face(r.regular, 32))
	dc.DrawStringAnchored("This certifies that", cx, 420, 0.5, 0.5)

	dc.SetRGB255(20, 20, 20)
	dc.SetFontFace(face(r.bold, 64))
	dc.DrawStringAnchored(cert.LearnerName, cx, 510, 0.5, 0.5)

	dc.SetRGB255(60, 60, 60)
	dc.SetFontFace(face(r.regular, 32))
	dc.DrawStringAnchored("has successfully completed the course", cx, 600, 0.5, 0.5)

	dc.SetRGB255(27, 67, 122)
	dc.SetFontFace(face(r.bold, 48))
	dc.DrawStringWrapped(cert.CourseTitle, cx, 690, 0.5, 0.5, width-4*margin, 1.3, gg.AlignCenter)

	dc.SetRGB255(60, 60, 60)
	dc.SetFontFace(face(r.regular, 26))
	dc.DrawStringAnchored("Issued "+cert.IssuedAt.Format(dateLayout), margin+80, height-170, 0, 0.5)
	dc.DrawStringAnchored("Valid until "+cert.ValidUntil.Format(dateLayout), margin+80, height-130, 0, 0.5)
	dc.DrawStringAnchored("No. "+cert.Number, width-margin-80, height-150, 1, 0.5)

	if err := dc.EncodePNG(w); err != nil {
		return errors.Wrap(err, "encoding certificate")
	}
	return nil
}
