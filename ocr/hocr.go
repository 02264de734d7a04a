package ocr

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/gardar/ocrchestra/pkg/hocr"
)

// pageLayout is one recognized page in raster pixel space.
type pageLayout struct {
	WidthPx  int
	HeightPx int
	Lang     string
	Words    []Word
}

// buildHOCR assembles the recognized pages into an hOCR document. Words
// are grouped into lines by the engine's line key; line and page boxes
// are unions of their children.
func buildHOCR(pages []pageLayout) *hocr.HOCR {
	doc := &hocr.HOCR{
		Title:    "socrate OCR output",
		Metadata: map[string]string{"ocr-system": "socrate"},
	}

	for i, p := range pages {
		page := hocr.Page{
			ID:         fmt.Sprintf("page_%d", i+1),
			PageNumber: i + 1,
			ImageName:  fmt.Sprintf("page_%03d.png", i+1),
			Lang:       p.Lang,
			BBox:       hocr.NewBoundingBox(0, 0, float64(p.WidthPx), float64(p.HeightPx)),
		}

		byLine := make(map[int][]Word)
		var order []int
		for _, w := range p.Words {
			if _, seen := byLine[w.Line]; !seen {
				order = append(order, w.Line)
			}
			byLine[w.Line] = append(byLine[w.Line], w)
		}
		sort.Ints(order)

		for li, key := range order {
			words := byLine[key]
			line := hocr.Line{
				ID:   fmt.Sprintf("line_%d_%d", i+1, li+1),
				BBox: unionBox(words),
			}
			for wi, w := range words {
				line.Words = append(line.Words, hocr.Word{
					ID:         fmt.Sprintf("word_%d_%d_%d", i+1, li+1, wi+1),
					Text:       w.Text,
					BBox:       hocr.NewBoundingBox(float64(w.X), float64(w.Y), float64(w.X+w.W), float64(w.Y+w.H)),
					Confidence: w.Confidence,
				})
			}
			page.Lines = append(page.Lines, line)
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc
}

func unionBox(words []Word) hocr.BoundingBox {
	if len(words) == 0 {
		return hocr.BoundingBox{}
	}
	b := hocr.NewBoundingBox(float64(words[0].X), float64(words[0].Y),
		float64(words[0].X+words[0].W), float64(words[0].Y+words[0].H))
	for _, w := range words[1:] {
		b.X1 = min(b.X1, float64(w.X))
		b.Y1 = min(b.Y1, float64(w.Y))
		b.X2 = max(b.X2, float64(w.X+w.W))
		b.Y2 = max(b.Y2, float64(w.Y+w.H))
	}
	return b
}

// renderHOCR serializes the document as standard hOCR XHTML. Coordinates
// are emitted as integers in raster pixel space; the PDF assembler maps
// them to point space against the page image dimensions.
func renderHOCR(doc *hocr.HOCR) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Transitional//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-transitional.dtd">` + "\n")
	b.WriteString(`<html xmlns="http://www.w3.org/1999/xhtml">` + "\n<head>\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(doc.Title))
	b.WriteString(`<meta http-equiv="Content-Type" content="text/html;charset=utf-8"/>` + "\n")
	for k, v := range doc.Metadata {
		fmt.Fprintf(&b, "<meta name=%q content=%q/>\n", k, html.EscapeString(v))
	}
	b.WriteString(`<meta name="ocr-capabilities" content="ocr_page ocr_line ocrx_word"/>` + "\n")
	b.WriteString("</head>\n<body>\n")

	for _, p := range doc.Pages {
		fmt.Fprintf(&b, "<div class='ocr_page' id='%s' title='image \"%s\"; bbox %s; ppageno %d'>\n",
			p.ID, p.ImageName, bboxAttr(p.BBox), p.PageNumber-1)
		for _, line := range p.Lines {
			fmt.Fprintf(&b, " <span class='ocr_line' id='%s' title='bbox %s'>\n", line.ID, bboxAttr(line.BBox))
			for _, w := range line.Words {
				fmt.Fprintf(&b, "  <span class='ocrx_word' id='%s' title='bbox %s; x_wconf %d'>%s</span>\n",
					w.ID, bboxAttr(w.BBox), int(w.Confidence), html.EscapeString(w.Text))
			}
			b.WriteString(" </span>\n")
		}
		b.WriteString("</div>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return []byte(b.String())
}

func bboxAttr(b hocr.BoundingBox) string {
	return fmt.Sprintf("%d %d %d %d", int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
}
