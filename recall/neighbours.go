package recall

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/louhangyu/zhipu/pkg/textutil"
)

// Neighbours 是关键词到关联词的映射，key 为小写关键词。
//
// YAML 格式：
//
//	deep learning: [neural network, representation learning]
//	知识图谱: [knowledge graph]
type Neighbours map[string][]string

// ParseNeighbours 解析 YAML 关联词表，关联词去重并去掉与关键词相同的词。
func ParseNeighbours(data []byte) (Neighbours, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("recall: parse neighbours: %w", err)
	}
	out := make(Neighbours, len(raw))
	for k, words := range raw {
		key := normalizeWord(k)
		if key == "" {
			continue
		}
		var kept []string
		for _, w := range textutil.Dedup(words) {
			if normalizeWord(w) != key {
				kept = append(kept, w)
			}
		}
		out[key] = append(out[key], kept...)
	}
	return out, nil
}

// LoadNeighbours 从文件读取关联词表，path 为空时返回空表。
func LoadNeighbours(path string) (Neighbours, error) {
	if path == "" {
		return Neighbours{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("recall: read neighbours: %w", err)
	}
	return ParseNeighbours(data)
}

// Of 返回关键词的关联词，大小写与首尾空白不敏感。
func (n Neighbours) Of(word string) []string {
	return n[normalizeWord(word)]
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}
