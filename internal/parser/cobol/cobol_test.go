package cobol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `      IDENTIFICATION DIVISION.
       PROGRAM-ID. SAMPLE.
       PROCEDURE DIVISION.
       MAIN-PARA.
           DISPLAY "HELLO".
           PERFORM SUB-PARA.
           STOP RUN.
       SUB-PARA.
           DISPLAY "WORLD".
`

func TestParseExtractsParagraphsAndPerform(t *testing.T) {
	p := New()
	result, err := p.Parse("sample.cbl", []byte(sample))
	require.NoError(t, err)
	require.Len(t, result.Symbols, 2)
	require.Equal(t, "MAIN-PARA", result.Symbols[0].Name)
	require.Equal(t, "SUB-PARA", result.Symbols[1].Name)

	require.NotEmpty(t, result.Calls)
	require.Equal(t, "SUB-PARA", result.Calls[0].ToName)
	require.Equal(t, 0, result.Calls[0].FromSymbolIndex)
}
