package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/domain/rag"
	"github.com/hackhero/backend/internal/domain/rulectx"
	"github.com/hackhero/backend/internal/infrastructure/extract"
	"github.com/hackhero/backend/internal/infrastructure/fetch"
	"github.com/hackhero/backend/internal/infrastructure/log"
)

// Service 上下文摄入：文本 / 上传文件 / URL 抓取 → 规则上下文行
// 摄入失败时不写库；成功后请求该会话的索引重建
type Service struct {
	rules     rulectx.Repository
	extractor *extract.Service
	fetcher   *fetch.URLFetcher
	index     rag.Retriever
	logger    *slog.Logger
}

// NewService 创建摄入服务
func NewService(rules rulectx.Repository, extractor *extract.Service, fetcher *fetch.URLFetcher, index rag.Retriever) *Service {
	return &Service{
		rules:     rules,
		extractor: extractor,
		fetcher:   fetcher,
		index:     index,
		logger:    log.NewModuleLogger("ingest", "service"),
	}
}

// AddText 摄入粘贴文本；以 http(s):// 开头的输入按 URL 处理
func (s *Service) AddText(ctx context.Context, text, sessionID string) (*rulectx.Row, error) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return nil, apperr.New(apperr.KindValidation, "text must not be empty")
	}

	if strings.HasPrefix(cleaned, "http://") || strings.HasPrefix(cleaned, "https://") {
		return s.AddURL(ctx, cleaned, sessionID)
	}

	row, err := s.rules.Insert(rulectx.SourceText, cleaned, "", sessionID)
	if err != nil {
		return nil, err
	}
	s.invalidate(sessionID)
	return row, nil
}

// AddURL 抓取 URL 并摄入其文本
func (s *Service) AddURL(ctx context.Context, rawURL, sessionID string) (*rulectx.Row, error) {
	content, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Newf(apperr.KindValidation, "url %s returned no text", rawURL)
	}

	row, err := s.rules.Insert(rulectx.SourceURL, content, rawURL, sessionID)
	if err != nil {
		return nil, err
	}
	s.invalidate(sessionID)
	return row, nil
}

// AddFile 校验上传文件、提取文本并摄入
func (s *Service) AddFile(ctx context.Context, filename string, data []byte, sessionID string) (*rulectx.Row, error) {
	text, err := s.extractor.ExtractFile(filename, data)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Newf(apperr.KindValidation, "file %s contains no extractable text", filename)
	}

	row, err := s.rules.Insert(rulectx.SourceFile, text, filename, sessionID)
	if err != nil {
		return nil, err
	}
	s.invalidate(sessionID)
	return row, nil
}

// ReplaceSeed 重载种子规则（DATA_ROOT/rules.txt）
// 先停用旧的 initial 行，再写入新内容
func (s *Service) ReplaceSeed(ctx context.Context, content string) error {
	cleaned := strings.TrimSpace(content)

	if err := s.rules.DeactivateBySource("", rulectx.SourceInitial); err != nil {
		return err
	}
	if cleaned != "" {
		if _, err := s.rules.Insert(rulectx.SourceInitial, cleaned, "rules.txt", ""); err != nil {
			return err
		}
	}
	s.invalidate("")
	return nil
}

// Deactivate 停用一条上下文行并请求重建
func (s *Service) Deactivate(id int64, sessionID string) error {
	if err := s.rules.Deactivate(id); err != nil {
		return err
	}
	s.invalidate(sessionID)
	return nil
}

// ListActive 列出活动上下文行
func (s *Service) ListActive(sessionID string) ([]*rulectx.Row, error) {
	return s.rules.ListActive(sessionID)
}

func (s *Service) invalidate(sessionID string) {
	s.index.Invalidate(sessionID)
}
