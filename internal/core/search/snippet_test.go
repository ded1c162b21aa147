package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSnippetContainsQueryWord(t *testing.T) {
	snippets := ExtractContextualSnippets("The quick brown fox jumps", "fox", 30, 3)
	require.Len(t, snippets, 1)
	assert.Contains(t, snippets[0], "fox")
}

func TestExtractSnippetEmptyContent(t *testing.T) {
	assert.Empty(t, ExtractContextualSnippets("", "fox", 30, 3))
	assert.Empty(t, ExtractContextualSnippets("   ", "fox", 30, 3))
}

func TestExtractSnippetEmptyQuery(t *testing.T) {
	assert.Empty(t, ExtractContextualSnippets("The quick brown fox", "", 30, 3))
}

func TestExtractSnippetFallsBackToLeadingWindow(t *testing.T) {
	// クエリ語が出現しなくても非空コンテンツなら必ず1件返る
	snippets := ExtractContextualSnippets("lunch at the corner cafe", "zebra", 3, 3)
	require.Len(t, snippets, 1)
	assert.True(t, strings.HasPrefix(snippets[0], "lunch"))
	assert.True(t, strings.HasSuffix(snippets[0], "..."))
}

func TestExtractSnippetEllipsisOnTruncatedSides(t *testing.T) {
	words := make([]string, 0, 40)
	for i := 0; i < 20; i++ {
		words = append(words, "filler")
	}
	words = append(words, "target")
	for i := 0; i < 20; i++ {
		words = append(words, "padding")
	}
	content := strings.Join(words, " ")

	snippets := ExtractContextualSnippets(content, "target", 5, 3)
	require.Len(t, snippets, 1)
	assert.Contains(t, snippets[0], "target")
	assert.True(t, strings.HasPrefix(snippets[0], "..."))
	assert.True(t, strings.HasSuffix(snippets[0], "..."))
}

func TestExtractSnippetRespectsMaxSnippets(t *testing.T) {
	// 離れた位置に3回出現、ウィンドウが重ならない幅で上限2件
	content := strings.Repeat("aaa bbb ccc ddd eee ", 2) + "fox " +
		strings.Repeat("fff ggg hhh iii jjj ", 2) + "fox " +
		strings.Repeat("kkk lll mmm nnn ooo ", 2) + "fox"

	snippets := ExtractContextualSnippets(content, "fox", 4, 2)
	assert.Len(t, snippets, 2)
	for _, s := range snippets {
		assert.Contains(t, s, "fox")
	}
}

func TestExtractSnippetCaseInsensitiveMatch(t *testing.T) {
	snippets := ExtractContextualSnippets("Dinner at ACME Diner downtown", "acme", 30, 3)
	require.Len(t, snippets, 1)
	assert.Contains(t, snippets[0], "ACME")
}

func TestExtractSnippetDefaults(t *testing.T) {
	// 0以下のパラメータはデフォルトにフォールバックする
	snippets := ExtractContextualSnippets("short fox text", "fox", 0, 0)
	require.Len(t, snippets, 1)
	assert.Equal(t, "short fox text", snippets[0])
}
