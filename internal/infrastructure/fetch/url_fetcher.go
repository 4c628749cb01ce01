package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/hackhero/backend/internal/domain/apperr"
	"github.com/hackhero/backend/internal/infrastructure/config"
	"github.com/hackhero/backend/internal/infrastructure/log"
)

// mimeAllowed URL 抓取允许的 MIME 类型
func mimeAllowed(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/xhtml+xml", "application/json", "application/xml":
		return true
	}
	return false
}

// URLFetcher 安全加固的 URL 文本抓取器
// 约束：仅 http/https、重定向上限、HEAD 预检、字节硬上限、读写超时
type URLFetcher struct {
	client       *http.Client
	maxBytes     int64
	maxRedirects int
	logger       *slog.Logger
}

// NewURLFetcher 创建 URL 抓取器
func NewURLFetcher(cfg *config.Config) *URLFetcher {
	maxRedirects := cfg.Ingest.MaxRedirects

	client := &http.Client{
		Timeout: cfg.Ingest.URLTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return apperr.Newf(apperr.KindTooManyRedirects, "more than %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &URLFetcher{
		client:       client,
		maxBytes:     cfg.Ingest.MaxURLBytes,
		maxRedirects: maxRedirects,
		logger:       log.NewModuleLogger("fetch", "url"),
	}
}

// Fetch 抓取 URL 并返回文本内容
// 任何校验失败都不读取正文；失败时返回类型化错误且不产生副作用
func (f *URLFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "invalid url", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", apperr.Newf(apperr.KindValidation, "unsupported url scheme: %s", parsed.Scheme)
	}

	// HEAD 预检：内容长度与 MIME 必须先通过
	headReq, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create preflight request: %w", err)
	}

	headResp, err := f.client.Do(headReq)
	if err != nil {
		return "", f.classifyTransportError(err)
	}
	_ = headResp.Body.Close()

	if headResp.StatusCode >= 400 {
		return "", apperr.Newf(apperr.KindUpstreamUnavailable, "url preflight returned status %d", headResp.StatusCode)
	}
	if ct := headResp.Header.Get("Content-Type"); ct != "" && !mimeAllowed(ct) {
		return "", apperr.Newf(apperr.KindUnsupportedMime, "content type %s not allowed", ct)
	}
	if headResp.ContentLength > f.maxBytes {
		return "", apperr.Newf(apperr.KindOversize, "content length %d exceeds cap %d", headResp.ContentLength, f.maxBytes)
	}

	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create fetch request: %w", err)
	}

	resp, err := f.client.Do(getReq)
	if err != nil {
		return "", f.classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return "", apperr.Newf(apperr.KindUpstreamUnavailable, "url fetch returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !mimeAllowed(ct) {
		return "", apperr.Newf(apperr.KindUnsupportedMime, "content type %s not allowed", ct)
	}

	// 正文流式读取并施加硬上限，绝不无界缓冲
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", f.classifyTransportError(err)
	}
	if int64(len(body)) > f.maxBytes {
		return "", apperr.Newf(apperr.KindOversize, "response body exceeds cap %d", f.maxBytes)
	}

	if !isMostlyText(body) {
		return "", apperr.New(apperr.KindUnsupportedMime, "response body is not decodable text")
	}

	f.logger.Info("Fetched url",
		"url", rawURL,
		"bytes", len(body),
	)

	return string(body), nil
}

// classifyTransportError 将传输错误归入类型化错误
func (f *URLFetcher) classifyTransportError(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return apperr.Wrap(apperr.KindTimeout, "url fetch timed out", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return apperr.Wrap(apperr.KindTimeout, "url fetch timed out", err)
		}
		// CheckRedirect 的错误被 url.Error 包裹
		if errors.As(urlErr.Err, &ae) {
			return ae
		}
	}
	return apperr.Wrap(apperr.KindUpstreamUnavailable, "url fetch failed", err)
}

// isMostlyText 粗判正文是否为可解码文本
func isMostlyText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	sample := data
	if len(sample) > 1024 {
		sample = sample[:1024]
	}
	nonText := 0
	for _, b := range sample {
		if b == 0 {
			return false
		}
		if b < 0x09 {
			nonText++
		}
	}
	return nonText*10 < len(sample)
}
