package c

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `#include <stdio.h>

int helper(int x) {
    return x + 1;
}

int main() {
    return helper(1);
}
`

func TestParseExtractsFunctionsAndCalls(t *testing.T) {
	p := New()
	result, err := p.Parse("sample.c", []byte(sample))
	require.NoError(t, err)
	require.Len(t, result.Symbols, 2)
	require.Equal(t, "helper", result.Symbols[0].Name)
	require.Equal(t, "main", result.Symbols[1].Name)

	require.NotEmpty(t, result.Calls)
	require.NotEmpty(t, result.Imports)
	require.Equal(t, "stdio.h", result.Imports[0].ToModuleName)
}
