package asm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `
main:
    call helper
    ret

helper:
    ; does nothing
    ret
`

func TestParseExtractsLabelsAndCalls(t *testing.T) {
	p := New()
	result, err := p.Parse("sample.asm", []byte(sample))
	require.NoError(t, err)
	require.Len(t, result.Symbols, 2)
	require.Equal(t, "main", result.Symbols[0].Name)
	require.Equal(t, "helper", result.Symbols[1].Name)

	require.Len(t, result.Calls, 1)
	require.Equal(t, "helper", result.Calls[0].ToName)
	require.Equal(t, 0, result.Calls[0].FromSymbolIndex)
}
