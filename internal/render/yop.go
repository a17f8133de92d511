// Package render draws YASS alignment results as SVG dot plots.
package render

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// alignmentLine matches a YASS .yop alignment header such as
// "*(1083406-1083463)(1290780-1290837) Ev: 9.1282 s: 58/58 f".
var alignmentLine = regexp.MustCompile(`^\*\((\d+)-(\d+)\)\((\d+)-(\d+)\)\s+Ev:\s+[^s]*\s+s:\s+\d+/\d+\s+([fr])\s*$`)

// Alignment is one query/reference segment pair.
type Alignment struct {
	Q1, Q2  int
	R1, R2  int
	Reverse bool
}

// ParseYOP extracts up to limit alignments from r (all when limit <= 0).
// Lines that are not alignment headers are ignored.
func ParseYOP(r io.Reader, limit int) ([]Alignment, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var out []Alignment
	for s.Scan() {
		m := alignmentLine.FindStringSubmatch(strings.TrimRight(s.Text(), "\r"))
		if m == nil {
			continue
		}
		var coords [4]int
		for i := range coords {
			v, err := strconv.Atoi(m[i+1])
			if err != nil {
				return nil, fmt.Errorf("bad coordinate %q: %w", m[i+1], err)
			}
			coords[i] = v
		}
		out = append(out, Alignment{
			Q1: coords[0], Q2: coords[1],
			R1: coords[2], R2: coords[3],
			Reverse: m[5] == "r",
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, s.Err()
}

// Options controls the dot plot geometry and styling.
type Options struct {
	Width        int
	Margin       int
	RefLen       int
	MaxAlign     int
	ForwardColor string
	ReverseColor string
	Thickness    float64
}

// DefaultOptions returns a 750px wide frame-only plot with black lines.
func DefaultOptions() Options {
	return Options{
		Width:        750,
		Margin:       10,
		MaxAlign:     1_000_000,
		ForwardColor: "#000000",
		ReverseColor: "#000000",
		Thickness:    1.0,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.Margin < 0 {
		o.Margin = d.Margin
	}
	if o.ForwardColor == "" {
		o.ForwardColor = d.ForwardColor
	}
	if o.ReverseColor == "" {
		o.ReverseColor = d.ReverseColor
	}
	if o.Thickness <= 0 {
		o.Thickness = d.Thickness
	}
	return o
}

func round(v float64) int {
	return int(math.RoundToEven(v))
}

// WriteSVG draws alignments with x = query and y = reference, y inverted so
// the origin sits bottom-left. The y axis spans RefLen when set, otherwise
// the largest reference coordinate. No alignments still yields a frame.
func WriteSVG(w io.Writer, alns []Alignment, opts Options) error {
	opts = opts.withDefaults()

	qmax, rmax := 0, 0
	for _, a := range alns {
		qmax = max(qmax, a.Q1, a.Q2)
		rmax = max(rmax, a.R1, a.R2)
	}
	xMax := qmax
	if xMax <= 0 {
		xMax = 1
	}
	yMax := rmax
	if opts.RefLen > 0 {
		yMax = opts.RefLen
	}
	if yMax <= 0 {
		yMax = 1
	}

	fact := float64(xMax) / float64(opts.Width)
	dimX := opts.Width
	dimY := round(float64(yMax) / fact)
	left, top := opts.Margin, opts.Margin

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	fmt.Fprintf(bw, "<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"%d\" height=\"%d\">\n", dimX+2*opts.Margin, dimY+2*opts.Margin)
	fmt.Fprintf(bw, "<rect width=\"100%%\" height=\"100%%\" fill=\"white\"/>\n")
	fmt.Fprintf(bw, "<rect x=\"%d\" y=\"%d\" width=\"%d\" height=\"%d\" fill=\"none\" stroke=\"#000000\"/>\n", left, top, dimX, dimY)

	thickness := strconv.FormatFloat(opts.Thickness, 'f', -1, 64)
	for _, a := range alns {
		x1 := left + round(float64(a.Q1)/fact)
		x2 := left + round(float64(a.Q2)/fact)
		y1 := top + round(float64(dimY)-float64(a.R1)/fact)
		y2 := top + round(float64(dimY)-float64(a.R2)/fact)
		color := opts.ForwardColor
		if a.Reverse {
			color = opts.ReverseColor
		}
		fmt.Fprintf(bw, "<line x1=\"%d\" y1=\"%d\" x2=\"%d\" y2=\"%d\" stroke=\"%s\" stroke-width=\"%s\"/>\n", x1, y1, x2, y2, color, thickness)
	}
	fmt.Fprintf(bw, "</svg>\n")
	return bw.Flush()
}

// ReadYOP parses up to limit alignments from the .yop file at path.
func ReadYOP(path string, limit int) ([]Alignment, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("yop not found: %w", err)
	}
	defer src.Close()

	alns, err := ParseYOP(src, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return alns, nil
}

// WriteSVGFile draws alns into a new SVG file at path.
func WriteSVGFile(path string, alns []Alignment, opts Options) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSVG(dst, alns, opts); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// YOPToSVG renders the .yop file at in to an SVG file at out. A file with no
// alignment records still produces a frame.
func YOPToSVG(in, out string, opts Options) (int, error) {
	opts = opts.withDefaults()
	alns, err := ReadYOP(in, opts.MaxAlign)
	if err != nil {
		return 0, err
	}
	if err := WriteSVGFile(out, alns, opts); err != nil {
		return 0, err
	}
	return len(alns), nil
}
