package services

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"databoard/metrics"
	"databoard/models"

	"github.com/go-pdf/fpdf"
	"gorm.io/datatypes"
)

const (
	pageMargin      = 50.0
	tableRowHeight  = 20.0
	fileColWidth    = 120.0
	filePreviewMax  = 5
	chartPreviewMax = 10
)

var (
	textColor  = [3]int{51, 51, 51}
	blackColor = [3]int{0, 0, 0}
	whiteColor = [3]int{255, 255, 255}
)

// fpdf core font families for the accepted fontType values.
var reportFonts = map[string]string{
	"Helvetica":   "Helvetica",
	"Times-Roman": "Times",
	"Courier":     "Courier",
}

// ReportStyle is the resolved form of a report's stylingOptions bag.
type ReportStyle struct {
	TitleColor       string
	TableBorderColor string
	TableHeaderColor string
	FontType         string
	FontSize         float64
	LineHeight       float64
}

func ResolveReportStyle(opts datatypes.JSONMap) ReportStyle {
	style := ReportStyle{
		TitleColor:       "#4e73df",
		TableBorderColor: "#dddddd",
		TableHeaderColor: "#f8f9fc",
		FontType:         "Helvetica",
		FontSize:         12,
		LineHeight:       1.5,
	}
	if v := stringOption(opts, "titleColor"); v != "" {
		style.TitleColor = v
	}
	if v := stringOption(opts, "tableBorderColor"); v != "" {
		style.TableBorderColor = v
	}
	if v := stringOption(opts, "tableHeaderColor"); v != "" {
		style.TableHeaderColor = v
	}
	if v := stringOption(opts, "fontType"); v != "" {
		if _, ok := reportFonts[v]; ok {
			style.FontType = v
		}
	}
	if v, ok := numberOption(opts, "fontSize"); ok && v >= 6 && v <= 48 {
		style.FontSize = v
	}
	if v, ok := numberOption(opts, "lineHeight"); ok && v >= 1 && v <= 3 {
		style.LineHeight = v
	}
	return style
}

// ReportComposer lays out report PDFs.
type ReportComposer struct {
	renderer *ChartRenderer
	compress bool
	now      func() time.Time
}

func NewReportComposer(renderer *ChartRenderer) *ReportComposer {
	return &ReportComposer{
		renderer: renderer,
		compress: true,
		now:      time.Now,
	}
}

// Compose produces the complete document: cover, table of contents, summary,
// data sources and visualizations. Files and charts appear in the given order.
// Any failure aborts the whole document.
func (rc *ReportComposer) Compose(report *models.Report, files []models.FileUpload, charts []models.Chart) ([]byte, error) {
	start := time.Now()
	out, err := rc.compose(report, files, charts)
	metrics.ReportDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReportFailures.Inc()
		return nil, err
	}
	return out, nil
}

func (rc *ReportComposer) compose(report *models.Report, files []models.FileUpload, charts []models.Chart) ([]byte, error) {
	style := ResolveReportStyle(report.StylingOptions)

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetCompression(rc.compress)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(report.Title, true)
	pdf.SetCreator("databoard", true)
	pdf.SetCreationDate(rc.now())

	w := &pdfWriter{
		pdf:   pdf,
		tr:    pdf.UnicodeTranslatorFromDescriptor(""),
		style: style,
		font:  reportFonts[style.FontType],
	}
	w.pageW, w.pageH = pdf.GetPageSize()

	w.cover(report.Title, rc.now())
	w.contents()
	w.summary(report.Description)
	w.dataSources(files)
	if err := w.visualizations(rc.renderer, charts); err != nil {
		return nil, err
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("layout report: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	return buf.Bytes(), nil
}

type pdfWriter struct {
	pdf   *fpdf.Fpdf
	tr    func(string) string
	style ReportStyle
	font  string

	pageW, pageH float64
}

func (w *pdfWriter) contentWidth() float64 {
	return w.pageW - 2*pageMargin
}

func (w *pdfWriter) setFont(style string, size float64) {
	w.pdf.SetFont(w.font, style, size)
}

func (w *pdfWriter) setText(c [3]int) {
	w.pdf.SetTextColor(c[0], c[1], c[2])
}

func (w *pdfWriter) setTextHex(hex string) {
	c := parseColor(hex, "#333333")
	w.pdf.SetTextColor(int(c.R), int(c.G), int(c.B))
}

func (w *pdfWriter) lineHeight(size float64) float64 {
	return size * w.style.LineHeight
}

// para writes wrapped text at the current font, starting at the left margin.
func (w *pdfWriter) para(text string, size float64, align string) {
	w.pdf.SetX(pageMargin)
	w.pdf.MultiCell(0, w.lineHeight(size), w.tr(text), "", align, false)
}

func (w *pdfWriter) heading(text string, size float64) {
	w.setText(textColor)
	w.setFont("BU", size)
	w.para(text, size, "L")
}

func (w *pdfWriter) body(text string) {
	w.setText(textColor)
	w.setFont("", w.style.FontSize)
	w.para(text, w.style.FontSize, "L")
}

func (w *pdfWriter) cover(title string, now time.Time) {
	w.pdf.AddPage()
	w.setTextHex(w.style.TitleColor)
	w.setFont("B", 24)
	w.para(title, 24, "C")
	w.pdf.Ln(12)

	w.setText(textColor)
	w.setFont("", 16)
	w.para("Generated on: "+now.Format("1/2/2006"), 16, "C")
}

func (w *pdfWriter) contents() {
	w.pdf.AddPage()
	w.heading("Table of Contents", 18)
	w.pdf.Ln(6)
	w.setFont("", 12)
	for _, entry := range []string{
		"1. Report Summary ...................... 3",
		"2. Data Sources ........................ 4",
		"3. Visualizations ...................... 5",
	} {
		w.para(entry, 12, "L")
	}
}

func (w *pdfWriter) summary(description string) {
	w.pdf.AddPage()
	w.heading("1. Report Summary", 18)
	w.pdf.Ln(6)
	if description != "" {
		w.body(description)
		w.pdf.Ln(w.style.FontSize)
	}
}

func (w *pdfWriter) dataSources(files []models.FileUpload) {
	w.pdf.Ln(w.style.FontSize)
	w.heading("2. Data Sources", 18)
	w.pdf.Ln(6)

	if len(files) == 0 {
		w.body("No data sources")
		return
	}

	for _, f := range files {
		w.heading(f.OriginalName, 14)
		w.body(fmt.Sprintf("• Rows: %d", len(f.ParsedData)))
		w.body("• Columns: " + strings.Join(f.Columns, ", "))
		w.pdf.Ln(6)

		if len(f.ParsedData) == 0 {
			continue
		}
		headers := f.ParsedData[0].Keys()
		// fixed-width columns past the right margin are left out
		if fit := int(w.contentWidth() / fileColWidth); len(headers) > fit {
			headers = headers[:fit]
		}
		w.table(headers, f.ParsedData, filePreviewMax, fileColWidth)
		w.pdf.Ln(w.style.FontSize * 1.5)
	}
}

func (w *pdfWriter) visualizations(renderer *ChartRenderer, charts []models.Chart) error {
	w.pdf.AddPage()
	w.heading("3. Visualizations", 18)
	w.pdf.Ln(6)

	if len(charts) == 0 {
		w.body("No visualizations included in this report")
		return nil
	}

	for i := range charts {
		c := &charts[i]
		if i > 0 {
			w.pdf.AddPage()
		}

		w.heading(c.Title, 14)
		w.body("Type: " + c.ChartType)
		if c.XAxis != "" && c.YAxis != "" {
			w.body("X: " + c.XAxis)
			w.body("Y: " + c.YAxis)
		}
		if c.Description != "" {
			w.pdf.Ln(4)
			w.body("Analysis:")
			w.body(c.Description)
		}
		w.pdf.Ln(6)

		if len(c.Data) > 0 {
			w.heading("Chart Data:", w.style.FontSize)
			w.pdf.Ln(4)
			headers := chartPreviewColumns(c)
			w.table(headers, c.Data, chartPreviewMax, w.contentWidth()/float64(len(headers)))
			w.pdf.Ln(w.style.FontSize)
		}

		img, err := renderer.RenderChart(c, DefaultChartWidth, DefaultChartHeight)
		if err != nil {
			return fmt.Errorf("chart %q: %w", c.Title, err)
		}
		w.image(fmt.Sprintf("chart-%d", i), img, DefaultChartWidth, DefaultChartHeight)
	}
	return nil
}

// chartPreviewColumns returns the axis and grouping columns when set, else
// every column of the first row.
func chartPreviewColumns(c *models.Chart) []string {
	var cols []string
	for _, col := range []string{c.XAxis, c.YAxis, c.GroupBy} {
		if col != "" {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		cols = c.Data[0].Keys()
	}
	return cols
}

// table draws a header row and up to limit body rows. A row that would cross
// the bottom margin moves to a new page and the header is repeated.
func (w *pdfWriter) table(headers []string, rows models.Rows, limit int, colWidth float64) {
	if len(rows) > limit {
		rows = rows[:limit]
	}
	border := parseColor(w.style.TableBorderColor, "#dddddd")
	header := parseColor(w.style.TableHeaderColor, "#f8f9fc")
	w.pdf.SetDrawColor(int(border.R), int(border.G), int(border.B))
	w.pdf.SetLineWidth(0.5)

	drawHeader := func() {
		w.pdf.SetFillColor(int(header.R), int(header.G), int(header.B))
		w.setText(blackColor)
		w.setFont("B", w.style.FontSize)
		w.pdf.SetX(pageMargin)
		for _, h := range headers {
			w.cell(h, colWidth)
		}
		w.pdf.Ln(tableRowHeight)
	}

	w.ensureSpace(2 * tableRowHeight)
	drawHeader()

	for _, row := range rows {
		if w.ensureSpace(tableRowHeight) {
			drawHeader()
		}
		w.pdf.SetFillColor(whiteColor[0], whiteColor[1], whiteColor[2])
		w.setText(blackColor)
		w.setFont("", w.style.FontSize)
		w.pdf.SetX(pageMargin)
		for _, h := range headers {
			v, _ := row.Get(h)
			text := CellText(v)
			if text == "" {
				text = "-"
			}
			w.cell(text, colWidth)
		}
		w.pdf.Ln(tableRowHeight)
	}
}

// cell writes one bordered, filled table cell, clipping text to its width.
func (w *pdfWriter) cell(text string, width float64) {
	text = w.tr(text)
	maxW := width - 10
	if w.pdf.GetStringWidth(text) > maxW {
		for len(text) > 0 && w.pdf.GetStringWidth(text+"...") > maxW {
			text = text[:len(text)-1]
		}
		text += "..."
	}
	w.pdf.CellFormat(width, tableRowHeight, text, "1", 0, "L", true, 0, "")
}

// ensureSpace starts a new page when fewer than h points remain; it reports
// whether it did.
func (w *pdfWriter) ensureSpace(h float64) bool {
	if w.pdf.GetY()+h <= w.pageH-pageMargin {
		return false
	}
	w.pdf.AddPage()
	return true
}

// image places a PNG centered, scaled down to the content width if needed.
func (w *pdfWriter) image(name string, png []byte, width, height float64) {
	if maxW := w.contentWidth(); width > maxW {
		height = height * maxW / width
		width = maxW
	}
	w.ensureSpace(height)

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	w.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	x := (w.pageW - width) / 2
	y := w.pdf.GetY()
	w.pdf.ImageOptions(name, x, y, width, height, false, opts, 0, "")
	w.pdf.SetY(y + height)
}
