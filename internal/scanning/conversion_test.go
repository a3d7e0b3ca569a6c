package scanning

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// onePagePDF builds a blank single-page PDF of w x h points
func onePagePDF(w, h int) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << >> >>", w, h),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

var _ = Describe("prepareImageData", func() {
	When("the slip is a PDF", func() {
		It("should render the first page to PNG", func() {
			data, mimeType, err := prepareImageData(onePagePDF(100, 200))
			Expect(err).NotTo(HaveOccurred())
			Expect(mimeType).To(Equal("image/png"))

			cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
			Expect(err).NotTo(HaveOccurred())
			Expect(format).To(Equal("png"))
			Expect(cfg.Width).To(BeNumerically(">", 0))
			Expect(cfg.Height).To(BeNumerically("~", 2*cfg.Width, 2))
		})
	})

	When("the PDF is damaged", func() {
		It("returns the error", func() {
			_, _, err := prepareImageData([]byte("%PDF-1.4\nnot really"))
			Expect(err).To(MatchError(ContainSubstring("converting PDF to image")))
		})
	})

	When("the slip is already a PNG", func() {
		It("should pass it through", func() {
			in := solidPNG(4, 4, color.White)
			data, mimeType, err := prepareImageData(in)
			Expect(err).NotTo(HaveOccurred())
			Expect(mimeType).To(Equal("image/png"))
			Expect(data).To(Equal(in))
		})
	})

	When("the slip is a GIF", func() {
		It("should convert it to PNG", func() {
			img := image.NewPaletted(image.Rect(0, 0, 3, 3), color.Palette{color.White, color.Black})
			var buf bytes.Buffer
			Expect(gif.Encode(&buf, img, nil)).To(Succeed())

			data, mimeType, err := prepareImageData(buf.Bytes())
			Expect(err).NotTo(HaveOccurred())
			Expect(mimeType).To(Equal("image/png"))
			_, err = png.Decode(bytes.NewReader(data))
			Expect(err).NotTo(HaveOccurred())
		})
	})
})

var _ = Describe("Stitch with a PDF", func() {
	It("should merge a PDF page beside a photo", func() {
		out, err := Stitch(onePagePDF(100, 200), solidPNG(50, 50, color.Black))
		Expect(err).NotTo(HaveOccurred())

		cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("jpeg"))
		Expect(cfg.Width).To(BeNumerically("~", cfg.Height*3/2, 3))
	})
})
