package search

import "strings"

const (
	// DefaultSnippetLength はスニペット1件あたりのトークン数デフォルト
	DefaultSnippetLength = 30
	// DefaultMaxSnippets は1コンテンツあたりのスニペット数上限デフォルト
	DefaultMaxSnippets = 3
)

// ExtractContextualSnippets はクエリ語の出現位置を中心とした snippetLen トークンの
// ウィンドウを最大 maxSnippets 件抽出する。切り詰めた側には省略記号を付ける。
// クエリ語が1つも出現しない場合はコンテンツ先頭のウィンドウ1件にフォールバック
// するため、コンテンツとクエリが空でない限り結果は必ず1件以上になる
func ExtractContextualSnippets(content, query string, snippetLen, maxSnippets int) []string {
	if strings.TrimSpace(content) == "" || strings.TrimSpace(query) == "" {
		return nil
	}
	if snippetLen <= 0 {
		snippetLen = DefaultSnippetLength
	}
	if maxSnippets <= 0 {
		maxSnippets = DefaultMaxSnippets
	}

	tokens := strings.Fields(content)
	queryWords := strings.Fields(strings.ToLower(query))

	// クエリ語を含むトークン位置を収集する（大文字小文字を無視した部分一致）
	var hits []int
	for i, token := range tokens {
		lower := strings.ToLower(token)
		for _, word := range queryWords {
			if strings.Contains(lower, word) {
				hits = append(hits, i)
				break
			}
		}
	}

	if len(hits) == 0 {
		// 出現なし: 先頭ウィンドウにフォールバック
		return []string{window(tokens, 0, snippetLen)}
	}

	snippets := make([]string, 0, maxSnippets)
	lastEnd := -1
	for _, hit := range hits {
		if len(snippets) >= maxSnippets {
			break
		}
		start := hit - snippetLen/2
		if start < 0 {
			start = 0
		}
		// 直前のウィンドウに含まれる出現はスキップ（重複ウィンドウの抑制）
		if hit < lastEnd {
			continue
		}
		snippets = append(snippets, window(tokens, start, snippetLen))
		lastEnd = start + snippetLen
	}

	return snippets
}

// window は tokens[start:start+length] を結合し、切り詰めた側に省略記号を付ける
func window(tokens []string, start, length int) string {
	end := start + length
	if end > len(tokens) {
		end = len(tokens)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(strings.Join(tokens[start:end], " "))
	if end < len(tokens) {
		b.WriteString("...")
	}
	return b.String()
}
