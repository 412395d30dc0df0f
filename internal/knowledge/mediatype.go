package knowledge

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var imageMediaTypes = []string{
	MediaTypePNG,
	MediaTypeJPEG,
	MediaTypeTIFF,
	MediaTypeBMP,
	MediaTypeGIF,
	MediaTypeWebP,
}

var extensionMediaTypes = map[string]string{
	".pdf":      MediaTypePDF,
	".txt":      MediaTypeText,
	".md":       MediaTypeMarkdown,
	".markdown": MediaTypeMarkdown,
	".csv":      MediaTypeCSV,
	".docx":     MediaTypeDOCX,
	".doc":      MediaTypeDOC,
	".xlsx":     MediaTypeXLSX,
	".png":      MediaTypePNG,
	".jpg":      MediaTypeJPEG,
	".jpeg":     MediaTypeJPEG,
	".tif":      MediaTypeTIFF,
	".tiff":     MediaTypeTIFF,
	".bmp":      MediaTypeBMP,
	".gif":      MediaTypeGIF,
	".webp":     MediaTypeWebP,
}

// genericMediaTypes 内容嗅探结果过于宽泛时优先使用扩展名
var genericMediaTypes = map[string]bool{
	MediaTypeOctetStream:        true,
	MediaTypeText:               true,
	"application/zip":           true,
	"application/x-ole-storage": true,
}

// DetectMediaType 根据内容嗅探媒体类型，必要时回退到扩展名
func DetectMediaType(name string, content []byte) string {
	byExt := mediaTypeFromExtension(name)

	detected := ""
	if len(content) > 0 {
		detected = MediaTypeEssence(mimetype.Detect(content).String())
	}

	switch {
	case detected == "":
		if byExt != "" {
			return byExt
		}
		return MediaTypeOctetStream
	case genericMediaTypes[detected] && byExt != "":
		return byExt
	default:
		return detected
	}
}

// ResolveMediaType 声明类型缺失或为octet-stream时进行嗅探
func ResolveMediaType(declared, name string, content []byte) string {
	essence := MediaTypeEssence(declared)
	if essence == "" || essence == MediaTypeOctetStream {
		return DetectMediaType(name, content)
	}
	return essence
}

func mediaTypeFromExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if mt, ok := extensionMediaTypes[ext]; ok {
		return mt
	}
	return MediaTypeEssence(mime.TypeByExtension(ext))
}
