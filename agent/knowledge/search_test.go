package knowledge

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSearchChunksRanksByMatchedWords(t *testing.T) {
	t.Parallel()

	content := strings.Join([]string{
		"Curto demais.",
		"O plano básico custa R$ 99 por mês e inclui suporte por e-mail para toda a equipe.",
		"O plano premium custa R$ 199 por mês, inclui suporte por telefone e link de pagamento.",
		"Nossa empresa foi fundada em 2010 e atende clientes em todo o Brasil com dedicação.",
	}, "\n\n")

	got := SearchChunks("plano premium pagamento", content)
	parts := strings.Split(got, chunkSeparator)
	if len(parts) != 2 {
		t.Fatalf("SearchChunks() returned %d blocks, want 2: %q", len(parts), got)
	}
	if !strings.Contains(parts[0], "premium") {
		t.Fatalf("first block = %q, want the premium block", parts[0])
	}
	if strings.Contains(got, "Curto demais") {
		t.Fatal("SearchChunks() kept a block shorter than the minimum")
	}
}

func TestSearchChunksFallsBackToHead(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("conteúdo sem relação alguma com a pergunta. ", 200)
	got := SearchChunks("xyzzy", content)
	if utf8.RuneCountInString(got) != headRunes {
		t.Fatalf("SearchChunks() without hits returned %d runes, want %d", utf8.RuneCountInString(got), headRunes)
	}
	if got := SearchChunks("   ", "texto"); got != "texto" {
		t.Fatalf("SearchChunks() with empty query = %q", got)
	}
	if got := SearchChunks("algo", "  \n "); got != "" {
		t.Fatalf("SearchChunks() on empty content = %q, want empty", got)
	}
}

func TestSearchChunksTruncatesLongBlocks(t *testing.T) {
	t.Parallel()

	long := "preço " + strings.Repeat("a", 600)
	got := SearchChunks("preço", long)
	if !strings.HasSuffix(got, "...") || utf8.RuneCountInString(got) != maxBlockRunes+3 {
		t.Fatalf("SearchChunks() = %d runes, want truncated block with ellipsis", utf8.RuneCountInString(got))
	}
}
