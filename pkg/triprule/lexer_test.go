package triprule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexBasicTokens(t *testing.T) {
	toks, err := lex(`a/b.c[0] == true && !x != 1.5`)
	require.NoError(t, err)

	var kinds []tokenKind
	for _, tk := range toks {
		kinds = append(kinds, tk.kind)
	}
	assert.Equal(t, []tokenKind{tokPath, tokEq, tokBool, tokAnd, tokNot, tokPath, tokNe, tokNumber, tokEOF}, kinds)
}

func TestLexRejectsUnterminatedString(t *testing.T) {
	_, err := lex(`a == "open`)
	require.Error(t, err)
}

func TestLexNegativeNumber(t *testing.T) {
	toks, err := lex(`a < -5`)
	require.NoError(t, err)
	require.Len(t, toks, 4)
	assert.Equal(t, "-5", toks[2].text)
}
