package render

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYOP = `YASS output
*(0-75)(0-150) Ev: 1.2e-30 s: 75/80 f
  ACGTACGT
  ||||||||
*(10-20)(140-120) Ev: 3.1 s: 10/10 r
garbage line
*(1083406-1083463)(1290780-1290837) Ev: 9.1282 s: 58/58 x
`

func TestParseYOP(t *testing.T) {
	alns, err := ParseYOP(strings.NewReader(sampleYOP), 0)
	require.NoError(t, err)
	assert.Equal(t, []Alignment{
		{Q1: 0, Q2: 75, R1: 0, R2: 150},
		{Q1: 10, Q2: 20, R1: 140, R2: 120, Reverse: true},
	}, alns)

	alns, err = ParseYOP(strings.NewReader(sampleYOP), 1)
	require.NoError(t, err)
	assert.Len(t, alns, 1)
}

func TestWriteSVG_Geometry(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.ReverseColor = "#ff0000"
	err := WriteSVG(&buf, []Alignment{
		{Q1: 0, Q2: 75, R1: 0, R2: 150},
		{Q1: 10, Q2: 20, R1: 140, R2: 120, Reverse: true},
	}, opts)
	require.NoError(t, err)

	svg := buf.String()
	assert.Contains(t, svg, `<svg xmlns="http://www.w3.org/2000/svg" width="770" height="1520">`)
	assert.Contains(t, svg, `<rect x="10" y="10" width="750" height="1500" fill="none" stroke="#000000"/>`)
	assert.Contains(t, svg, `<line x1="10" y1="1510" x2="760" y2="10" stroke="#000000" stroke-width="1"/>`)
	assert.Contains(t, svg, `<line x1="110" y1="110" x2="210" y2="310" stroke="#ff0000" stroke-width="1"/>`)
	assert.True(t, strings.HasSuffix(svg, "</svg>\n"))
}

func TestWriteSVG_RefLenScalesYAxis(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.RefLen = 300
	require.NoError(t, WriteSVG(&buf, []Alignment{{Q1: 0, Q2: 75, R1: 0, R2: 150}}, opts))
	assert.Contains(t, buf.String(), `height="3000"`)
}

func TestWriteSVG_EmptyStillDrawsFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSVG(&buf, nil, DefaultOptions()))
	svg := buf.String()
	assert.Contains(t, svg, `<rect x="10" y="10" width="750" height="750"`)
	assert.NotContains(t, svg, "<line")
}

func TestYOPToSVG(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "read_1a2b3c4d.yop")
	out := filepath.Join(dir, "read_1a2b3c4d.svg")
	require.NoError(t, os.WriteFile(in, []byte(sampleYOP), 0644))

	n, err := YOPToSVG(in, out, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, out)

	_, err = YOPToSVG(filepath.Join(dir, "missing.yop"), out, DefaultOptions())
	assert.Error(t, err)
}

func TestReadYOP_HeaderOnly(t *testing.T) {
	in := filepath.Join(t.TempDir(), "header.yop")
	require.NoError(t, os.WriteFile(in, []byte("# YASS 1.15 parameters: -d 3\n"), 0644))

	alns, err := ReadYOP(in, 0)
	require.NoError(t, err)
	assert.Empty(t, alns)

	_, err = ReadYOP(filepath.Join(t.TempDir(), "missing.yop"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yop not found")
}
