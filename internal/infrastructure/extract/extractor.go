package extract

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/infrastructure/config"
	"github.com/hackhero/backend/internal/infrastructure/log"
)

// allowedExtensions 上传允许的扩展名
var allowedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".pdf":  true,
	".docx": true,
	".doc":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Extractor 外部文本提取协作方（PDF/DOCX/OCR）
// 纯函数：extract(bytes, mime) -> text
type Extractor interface {
	Extract(data []byte, mimeType string) (string, error)
}

// Service 上传文件校验与文本提取
type Service struct {
	maxBytes int64
	external Extractor // 可为 nil，此时仅支持纯文本
	logger   *slog.Logger
}

// NewService 创建提取服务
func NewService(cfg *config.Config, external Extractor) *Service {
	return &Service{
		maxBytes: cfg.Ingest.MaxUploadBytes,
		external: external,
		logger:   log.NewModuleLogger("extract", "service"),
	}
}

// ExtractFile 校验上传文件并提取文本
// 校验顺序：大小上限、扩展名、嗅探 MIME；失败返回类型化错误
func (s *Service) ExtractFile(filename string, data []byte) (string, error) {
	if int64(len(data)) > s.maxBytes {
		return "", apperr.Newf(apperr.KindOversize, "file %s exceeds size limit %d", filename, s.maxBytes)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" && !allowedExtensions[ext] {
		return "", apperr.Newf(apperr.KindUnsupportedMime, "file extension %s not allowed", ext)
	}

	sniffed := http.DetectContentType(data)

	switch {
	case strings.HasPrefix(sniffed, "text/"), ext == ".txt", ext == ".md", ext == "":
		return decodePlainText(data), nil
	default:
		if s.external == nil {
			return "", apperr.Newf(apperr.KindUnsupportedMime, "no extractor available for %s", sniffed)
		}
		text, err := s.external.Extract(data, sniffed)
		if err != nil {
			return "", apperr.Wrap(apperr.KindInternal, "text extraction failed", err)
		}
		return text, nil
	}
}

// decodePlainText UTF-8 解码，非法字节序列替换而不拒绝
func decodePlainText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}
