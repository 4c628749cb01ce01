package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	domainRAG "github.com/hackhero/backend/internal/domain/rag"
	"github.com/hackhero/backend/internal/domain/rulectx"
)

// blankLineGroup 连续空行（允许行内空白）
var blankLineGroup = regexp.MustCompile(`\n[ \t]*\n+`)

// RulesHash 活动内容按序拼接后的 SHA-256，十六进制
// 只参与内容，不掺入行 ID 或时间，保证相同内容的会话共享缓存
func RulesHash(rows []*rulectx.Row) string {
	h := sha256.New()
	for _, row := range rows {
		h.Write([]byte(row.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// BuildChunks 将活动行切分为检索片段
// 活动行按插入顺序拼接，按空行组切分，去除首尾空白，丢弃空片段；
// 每个片段保留来源行 ID 与在该行内的起始偏移
func BuildChunks(rows []*rulectx.Row) []domainRAG.Chunk {
	var chunks []domainRAG.Chunk
	chunkID := 0

	for _, row := range rows {
		pieces := splitOnBlankLines(row.Content)
		for _, p := range pieces {
			chunks = append(chunks, domainRAG.Chunk{
				ChunkID:     chunkID,
				Text:        p.text,
				SourceRowID: row.ID,
				Offset:      p.offset,
			})
			chunkID++
		}
	}
	return chunks
}

type piece struct {
	text   string
	offset int
}

// splitOnBlankLines 按空行组切分并记录偏移
func splitOnBlankLines(content string) []piece {
	var pieces []piece
	start := 0

	boundaries := blankLineGroup.FindAllStringIndex(content, -1)
	segments := make([][2]int, 0, len(boundaries)+1)
	for _, b := range boundaries {
		segments = append(segments, [2]int{start, b[0]})
		start = b[1]
	}
	segments = append(segments, [2]int{start, len(content)})

	for _, seg := range segments {
		raw := content[seg[0]:seg[1]]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		// 偏移指向去除前导空白后的首个字符
		lead := strings.Index(raw, trimmed[:1])
		pieces = append(pieces, piece{text: trimmed, offset: seg[0] + lead})
	}
	return pieces
}
