package store

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// cosineSimilarity returns 0 for empty, mismatched or zero-magnitude vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankBySimilarity orders records by descending similarity to query and
// keeps at most limit. Records without an embedding are skipped.
func rankBySimilarity(records []MemoryRecord, query []float32, limit int) []MemoryRecord {
	type scored struct {
		record MemoryRecord
		score  float64
	}
	candidates := make([]scored, 0, len(records))
	for _, r := range records {
		if len(r.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, scored{record: r, score: cosineSimilarity(query, r.Embedding)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if limit > len(candidates) {
		limit = len(candidates)
	}
	out := make([]MemoryRecord, 0, limit)
	for _, c := range candidates[:limit] {
		out = append(out, c.record)
	}
	return out
}

// vectorLiteral renders an embedding in pgvector text form, e.g. "[0.1,0.2]".
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func normalizeMemory(record MemoryRecord) MemoryRecord {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if strings.TrimSpace(record.MemoryType) == "" {
		record.MemoryType = MemoryTypeGeneral
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return record
}
