//go:build !ocr

package knowledge

// OCREnabled 当前构建是否包含图片文字识别
const OCREnabled = false

// registerOCR 未启用ocr构建标签时不注册图片类型，图片按不支持的格式拒绝
func registerOCR(e *Extractor, languages []string) {}
