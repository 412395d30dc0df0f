//go:build ocr

package knowledge

import (
	"context"

	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/aihub/docqa/internal/errors"
)

// OCREnabled 当前构建是否包含图片文字识别
const OCREnabled = true

func registerOCR(e *Extractor, languages []string) {
	e.Register(NewOCRParser(languages))
}

// OCRParser 图片文字识别，需要系统安装tesseract
type OCRParser struct {
	languages []string
}

// NewOCRParser 创建OCR解析器
func NewOCRParser(languages []string) *OCRParser {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &OCRParser{languages: languages}
}

func (p *OCRParser) MediaTypes() []string {
	return imageMediaTypes
}

func (p *OCRParser) Parse(ctx context.Context, content []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(p.languages...); err != nil {
		return "", apperrors.Wrap(apperrors.KindExtraction, "invalid ocr languages", err)
	}
	if err := client.SetImageFromBytes(content); err != nil {
		return "", apperrors.Wrap(apperrors.KindExtraction, "failed to load image", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", apperrors.Wrap(apperrors.KindExtraction, "ocr failed", err)
	}
	return text, nil
}
