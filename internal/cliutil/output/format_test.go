package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "table", input: "table", want: FormatTable},
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "json", input: "json", want: FormatJSON},
		{name: "JSON uppercase", input: "JSON", want: FormatJSON},
		{name: "yaml", input: "yaml", want: FormatYAML},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "whitespace trimmed", input: "  table  ", want: FormatTable},
		{name: "invalid format", input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatString(t *testing.T) {
	assert.Equal(t, "table", FormatTable.String())
	assert.Equal(t, "json", FormatJSON.String())
	assert.Equal(t, "yaml", FormatYAML.String())
}

type testRow struct {
	name, value string
}

type testRenderer []testRow

func (tr testRenderer) Headers() []string { return []string{"NAME", "VALUE"} }
func (tr testRenderer) Rows() [][]string {
	rows := make([][]string, 0, len(tr))
	for _, r := range tr {
		rows = append(rows, []string{r.name, r.value})
	}
	return rows
}

func TestPrinter_PrintFallsBackToJSONWithoutTableRenderer(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatTable, false)

	require.NoError(t, p.Print(map[string]string{"a": "b"}))
	assert.Contains(t, buf.String(), `"a": "b"`)
}

func TestPrinter_PrintRendersTable(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatTable, false)

	require.NoError(t, p.Print(testRenderer{{name: "mynexus", value: "Online"}}))
	assert.Contains(t, buf.String(), "mynexus")
	assert.Contains(t, buf.String(), "Online")
}

func TestPrinter_SuccessAndErrorColor(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatTable, true)

	p.Success("ok")
	assert.Contains(t, buf.String(), "\033[32m")

	buf.Reset()
	p.Error("bad")
	assert.Contains(t, buf.String(), "\033[31m")
}
