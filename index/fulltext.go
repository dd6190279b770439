package index

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Hain2000/docindex/key"
)

const (
	defaultSeparatorChars = " \r\n\t:;,.|+*/\\=!?[](){}"
	defaultIgnoreChars    = "'\""
	defaultStopWords      = "the in a at as and or for his her him this that what which while up with be was were is"
	defaultMinWordLength  = 3
)

// 全文索引在元数据里的配置项
const (
	MetaSeparatorChars = "separatorChars"
	MetaIgnoreChars    = "ignoreChars"
	MetaStopWords      = "stopWords"
	MetaMinWordLength  = "minWordLength"
)

// Tokenizer 把文本拆成全文索引的词
type Tokenizer struct {
	separators    string
	ignore        string
	stopWords     map[string]struct{}
	minWordLength int
}

func NewTokenizer(metadata map[string]string) *Tokenizer {
	t := &Tokenizer{
		separators:    defaultSeparatorChars,
		ignore:        defaultIgnoreChars,
		minWordLength: defaultMinWordLength,
	}
	stop := defaultStopWords
	if v, ok := metadata[MetaSeparatorChars]; ok {
		t.separators = v
	}
	if v, ok := metadata[MetaIgnoreChars]; ok {
		t.ignore = v
	}
	if v, ok := metadata[MetaStopWords]; ok {
		stop = v
	}
	if v, ok := metadata[MetaMinWordLength]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			t.minWordLength = n
		}
	}
	t.stopWords = make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(stop)) {
		t.stopWords[w] = struct{}{}
	}
	return t
}

// Normalize 单个词按照写入时的方式处理：去掉忽略的字符并转小写
func (t *Tokenizer) Normalize(word string) string {
	word = strings.Map(func(r rune) rune {
		if strings.ContainsRune(t.ignore, r) {
			return -1
		}
		return r
	}, word)
	return strings.ToLower(word)
}

// Tokens 拆词，跳过停用词和过短的词，结果去重并保持出现的顺序
func (t *Tokenizer) Tokens(v any) []string {
	if v == nil {
		return nil
	}
	var text string
	switch x := v.(type) {
	case string:
		text = x
	case *key.CompositeKey:
		parts := make([]string, 0, x.Len())
		for _, k := range x.Keys() {
			parts = append(parts, fmt.Sprint(k))
		}
		text = strings.Join(parts, " ")
	default:
		text = fmt.Sprint(v)
	}

	words := strings.FieldsFunc(text, func(r rune) bool {
		return strings.ContainsRune(t.separators, r)
	})
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = t.Normalize(w)
		if len([]rune(w)) < t.minWordLength {
			continue
		}
		if _, stop := t.stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
