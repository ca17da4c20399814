package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "table", want: FormatTable},
		{input: "", want: FormatTable},
		{input: "JSON", want: FormatJSON},
		{input: "yml", want: FormatYAML},
		{input: "  yaml ", want: FormatYAML},
		{input: "csv", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got)
	}
}

type pair struct {
	Name string `json:"name" yaml:"name"`
}

func TestPrinterFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatJSON).Print(pair{"weights.bin"}))
	assert.Contains(t, buf.String(), `"name": "weights.bin"`)

	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatYAML).Print(pair{"weights.bin"}))
	assert.Contains(t, buf.String(), "name: weights.bin")

	// Tables need a TableRenderer; other values print as JSON.
	buf.Reset()
	require.NoError(t, NewPrinter(&buf, FormatTable).Print(pair{"weights.bin"}))
	assert.Contains(t, buf.String(), `"name"`)

	assert.Error(t, NewPrinter(&buf, Format("xml")).Print(pair{}))
}

func TestPrinterStatusWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatTable)
	p.Success("done")
	p.Warning("careful")
	assert.Equal(t, "done\ncareful\n", buf.String())
}

func TestPrinterColor(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{out: &buf, format: FormatTable, color: true}
	p.Success("done")
	assert.Equal(t, "\033[32mdone\033[0m\n", buf.String())
}
