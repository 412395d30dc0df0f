package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"code.sajari.com/docconv/v2"
	pdfreader "github.com/ledongthuc/pdf"
	officelicense "github.com/unidoc/unioffice/common/license"
	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unioffice/spreadsheet"
	pdflicense "github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
	"go.uber.org/zap"

	apperrors "github.com/aihub/docqa/internal/errors"
	"github.com/aihub/docqa/internal/logger"
)

// ContentParser 按媒体类型解析文档内容
type ContentParser interface {
	Parse(ctx context.Context, content []byte) (string, error)
	MediaTypes() []string
}

// TextParser 纯文本解析器
type TextParser struct{}

func (p *TextParser) MediaTypes() []string {
	return []string{MediaTypeText, MediaTypeMarkdown}
}

func (p *TextParser) Parse(ctx context.Context, content []byte) (string, error) {
	return string(bytes.TrimPrefix(content, utf8BOM)), nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// PDFParser PDF解析器，unipdf失败时回退到ledongthuc/pdf
type PDFParser struct{}

func (p *PDFParser) MediaTypes() []string {
	return []string{MediaTypePDF}
}

func (p *PDFParser) Parse(ctx context.Context, content []byte) (string, error) {
	text, err := p.parseUnipdf(ctx, content)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if err != nil {
		logger.Debug("unipdf extraction failed, trying fallback reader", zap.Error(err))
	}

	fallback, fbErr := p.parsePlain(ctx, content)
	if fbErr != nil {
		if err == nil {
			err = fbErr
		}
		return "", apperrors.Wrap(apperrors.KindExtraction, "failed to parse pdf", err)
	}
	return fallback, nil
}

func (p *PDFParser) parseUnipdf(ctx context.Context, content []byte) (string, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("count pdf pages: %w", err)
	}

	var textBuilder strings.Builder
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i, err)
		}
		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("page %d extractor: %w", i, err)
		}
		text, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}
	return textBuilder.String(), nil
}

func (p *PDFParser) parsePlain(ctx context.Context, content []byte) (string, error) {
	reader, err := pdfreader.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var textBuilder strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}
	return textBuilder.String(), nil
}

// WordParser docx解析器
type WordParser struct{}

func (p *WordParser) MediaTypes() []string {
	return []string{MediaTypeDOCX}
}

func (p *WordParser) Parse(ctx context.Context, content []byte) (string, error) {
	doc, err := document.Read(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindExtraction, "failed to parse word document", err)
	}
	defer doc.Close()

	paragraphs := doc.Paragraphs()
	lines := make([]string, 0, len(paragraphs))
	for _, para := range paragraphs {
		var line strings.Builder
		for _, run := range para.Runs() {
			line.WriteString(run.Text())
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n"), nil
}

// LegacyWordParser .doc解析器，依赖docconv
type LegacyWordParser struct{}

func (p *LegacyWordParser) MediaTypes() []string {
	return []string{MediaTypeDOC}
}

func (p *LegacyWordParser) Parse(ctx context.Context, content []byte) (string, error) {
	resp, err := docconv.Convert(bytes.NewReader(content), MediaTypeDOC, false)
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindExtraction, "failed to convert legacy word document", err)
	}
	return resp.Body, nil
}

// SpreadsheetParser xlsx解析器，每个工作表按表格输出
type SpreadsheetParser struct{}

func (p *SpreadsheetParser) MediaTypes() []string {
	return []string{MediaTypeXLSX}
}

func (p *SpreadsheetParser) Parse(ctx context.Context, content []byte) (string, error) {
	ss, err := spreadsheet.Read(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindExtraction, "failed to parse spreadsheet", err)
	}
	defer ss.Close()

	var textBuilder strings.Builder
	for _, sheet := range ss.Sheets() {
		var records [][]string
		for _, row := range sheet.Rows() {
			var record []string
			for _, cell := range row.Cells() {
				record = append(record, cell.GetString())
			}
			if len(record) > 0 {
				records = append(records, record)
			}
		}
		if len(records) == 0 {
			continue
		}
		fmt.Fprintf(&textBuilder, "Sheet: %s\n", sheet.Name())
		textBuilder.WriteString(renderTable(records[0], records[1:]))
		textBuilder.WriteString("\n")
	}
	return textBuilder.String(), nil
}

// ExtractorOptions 解析器配置
type ExtractorOptions struct {
	OCRLanguages     []string
	UnidocLicenseKey string
}

// Extractor 文档文本提取器
type Extractor struct {
	parsers map[string]ContentParser
}

var licenseOnce sync.Once

// NewExtractor 创建提取器并注册全部解析器
func NewExtractor(opts ExtractorOptions) *Extractor {
	if opts.UnidocLicenseKey != "" {
		licenseOnce.Do(func() {
			if err := pdflicense.SetMeteredKey(opts.UnidocLicenseKey); err != nil {
				logger.Warn("unipdf license rejected", zap.Error(err))
			}
			if err := officelicense.SetMeteredKey(opts.UnidocLicenseKey); err != nil {
				logger.Warn("unioffice license rejected", zap.Error(err))
			}
		})
	}

	e := &Extractor{parsers: make(map[string]ContentParser)}
	e.Register(&PDFParser{})
	e.Register(&TextParser{})
	e.Register(&CSVParser{})
	e.Register(&WordParser{})
	e.Register(&LegacyWordParser{})
	e.Register(&SpreadsheetParser{})
	registerOCR(e, opts.OCRLanguages)
	return e
}

// Register 注册解析器，同一媒体类型后注册者覆盖
func (e *Extractor) Register(parser ContentParser) {
	for _, mt := range parser.MediaTypes() {
		e.parsers[MediaTypeEssence(mt)] = parser
	}
}

// Supports 是否支持媒体类型
func (e *Extractor) Supports(mediaType string) bool {
	_, ok := e.parsers[MediaTypeEssence(mediaType)]
	return ok
}

// SupportedMediaTypes 返回支持的媒体类型（已排序）
func (e *Extractor) SupportedMediaTypes() []string {
	result := make([]string, 0, len(e.parsers))
	for mt := range e.parsers {
		result = append(result, mt)
	}
	sort.Strings(result)
	return result
}

// Extract 提取文档文本
func (e *Extractor) Extract(ctx context.Context, doc Document) (text string, err error) {
	essence := doc.Essence()
	parser, ok := e.parsers[essence]
	if !ok {
		return "", apperrors.Newf(apperrors.KindUnsupportedFormat, "unsupported media type %q", doc.MediaType)
	}
	if len(doc.Content) == 0 {
		return "", apperrors.New(apperrors.KindExtraction, "document is empty")
	}
	if err := ctx.Err(); err != nil {
		return "", apperrors.FromContext(err)
	}

	// 第三方解析库遇到损坏文件可能panic
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = apperrors.Newf(apperrors.KindExtraction, "parser crashed on %s: %v", essence, r)
		}
	}()

	text, err = parser.Parse(ctx, doc.Content)
	if err != nil {
		return "", apperrors.Ensure(err, apperrors.KindExtraction, "failed to extract "+essence)
	}
	if strings.TrimSpace(text) == "" {
		return "", apperrors.Newf(apperrors.KindExtraction, "no text could be extracted from %s", essence)
	}

	logger.Debug("document extracted",
		zap.String("document", doc.Name),
		zap.String("mediaType", essence),
		zap.Int("bytes", len(doc.Content)),
		zap.Int("chars", len([]rune(text))))
	return text, nil
}
