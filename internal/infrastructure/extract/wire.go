package extract

import "github.com/google/wire"

// ProvideExtractor 外部提取协作方
// 默认构建不内置 PDF/DOCX/OCR 提取器，仅支持纯文本；
// 部署方可替换此 provider 注入真实实现
func ProvideExtractor() Extractor {
	return nil
}

// ProviderSet Extract 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideExtractor,
	NewService,
)
