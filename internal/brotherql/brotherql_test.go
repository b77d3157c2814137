package brotherql

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/nantokaworks/ql-label-printer/internal/labels"
	"github.com/nantokaworks/ql-label-printer/internal/raster"
)

func unpackBits(data []byte) []byte {
	var out []byte
	for i := 0; i < len(data); {
		n := int(int8(data[i]))
		i++
		switch {
		case n >= 0:
			out = append(out, data[i:i+n+1]...)
			i += n + 1
		case n != -128:
			out = append(out, bytes.Repeat([]byte{data[i]}, 1-n)...)
			i++
		}
	}
	return out
}

func TestPackBits(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{
			name: "apple example",
			in:   []byte{0xAA, 0xAA, 0xAA, 0x80, 0x00, 0x2A, 0xAA, 0xAA, 0xAA, 0xAA, 0x80, 0x00, 0x2A, 0x22, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA},
			want: []byte{0xFE, 0xAA, 0x02, 0x80, 0x00, 0x2A, 0xFD, 0xAA, 0x03, 0x80, 0x00, 0x2A, 0x22, 0xF7, 0xAA},
		},
		{name: "empty row", in: make([]byte, 90), want: []byte{0xA7, 0x00}},
		{name: "single byte", in: []byte{0x42}, want: []byte{0x00, 0x42}},
		{name: "long run is split", in: make([]byte, 130), want: []byte{0x81, 0x00, 0xFF, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PackBits(tt.in)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("PackBits() = % x, want % x", got, tt.want)
			}
			if back := unpackBits(got); !bytes.Equal(back, tt.in) {
				t.Errorf("unpackBits(PackBits()) = % x, want % x", back, tt.in)
			}
		})
	}

	// 128 バイトを超えるリテラル
	lit := make([]byte, 300)
	for i := range lit {
		lit[i] = byte(i)
	}
	if back := unpackBits(PackBits(lit)); !bytes.Equal(back, lit) {
		t.Error("literal round trip failed")
	}
}

func setup(t *testing.T, model, label string) (labels.LabelProfile, labels.Model) {
	t.Helper()
	p, err := labels.Lookup(model, label)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	m, err := labels.LookupModel(model)
	if err != nil {
		t.Fatalf("LookupModel() error = %v", err)
	}
	return p, m
}

func newJob(w, h int, red bool) *raster.Job {
	stride := (w + 7) / 8
	j := &raster.Job{Width: w, Height: h, Stride: stride, Black: make([]byte, stride*h)}
	if red {
		j.Red = make([]byte, stride*h)
	}
	return j
}

func TestEncodeMonochrome(t *testing.T) {
	p, m := setup(t, "QL-800", "62")
	job := newJob(p.Width, 2, false)
	job.Black[0] = 0x80 // x=0, y=0

	out, err := Encode(job, p, m, Options{Cut: true})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var want bytes.Buffer
	want.Write(make([]byte, 400))
	want.Write([]byte{0x1B, 0x40, 0x1B, 0x69, 0x61, 0x01})
	want.Write([]byte{0x1B, 0x69, 0x7A, 0xCE, 0x0A, 62, 0, 2, 0, 0, 0, 0, 0})
	want.Write([]byte{0x1B, 0x69, 0x4D, 0x40, 0x1B, 0x69, 0x41, 0x01})
	want.Write([]byte{0x1B, 0x69, 0x4B, 0x08})
	want.Write([]byte{0x1B, 0x69, 0x64, 35, 0})
	row0 := make([]byte, 90)
	// 右余白 12 + 幅 696 - 1 = 707 ビット目（左右反転）
	row0[707/8] = 0x80 >> (707 % 8)
	want.Write(append([]byte{0x67, 0x00, 90}, row0...))
	want.Write(append([]byte{0x67, 0x00, 90}, make([]byte, 90)...))
	want.WriteByte(0x1A)

	if !bytes.Equal(out, want.Bytes()) {
		t.Errorf("Encode() =\n% x\nwant\n% x", out[400:], want.Bytes()[400:])
	}
}

func TestEncodeTwoColor(t *testing.T) {
	p, m := setup(t, "QL-800", "62red")
	job := newJob(p.Width, 1, true)
	out, err := Encode(job, p, m, Options{Cut: true})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Contains(out, []byte{0x1B, 0x69, 0x4B, 0x09}) {
		t.Error("expanded mode without two-colour flag")
	}
	black := append([]byte{0x77, 0x01, 90}, make([]byte, 90)...)
	red := append([]byte{0x77, 0x02, 90}, make([]byte, 90)...)
	if !bytes.HasSuffix(out, append(append(black, red...), 0x1A)) {
		t.Error("two-colour raster lines missing")
	}
}

func TestEncodeCompressed(t *testing.T) {
	p, m := setup(t, "QL-820NWB", "62")
	job := newJob(p.Width, 3, false)
	out, err := Encode(job, p, m, Options{Compress: true})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Contains(out, []byte{0x4D, 0x02}) {
		t.Error("compression command missing")
	}
	if bytes.Contains(out, []byte{0x1B, 0x69, 0x4D}) {
		t.Error("auto cut sent with Cut=false")
	}
	line := []byte{0x67, 0x00, 0x02, 0xA7, 0x00}
	if got := bytes.Count(out, line); got != 3 {
		t.Errorf("compressed lines = %d, want 3", got)
	}
}

func TestEncodeHighResolutionDoublesLines(t *testing.T) {
	p, m := setup(t, "QL-800", "62")
	job := newJob(p.Width, 5, false)
	out, err := Encode(job, p, m, Options{HighResolution: true})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	i := bytes.Index(out, []byte{0x1B, 0x69, 0x7A})
	if i < 0 {
		t.Fatal("print information missing")
	}
	if got := binary.LittleEndian.Uint32(out[i+7 : i+11]); got != 10 {
		t.Errorf("raster line count = %d, want 10", got)
	}
	if got := bytes.Count(out, []byte{0x67, 0x00, 90}); got != 10 {
		t.Errorf("raster lines = %d, want 10", got)
	}
}

func TestEncodeDieCutInformation(t *testing.T) {
	p, m := setup(t, "QL-800", "62x29")
	out, err := Encode(newJob(p.Width, p.Height, false), p, m, Options{})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	i := bytes.Index(out, []byte{0x1B, 0x69, 0x7A})
	if out[i+4] != MediaDieCut || out[i+5] != 62 || out[i+6] != 29 {
		t.Errorf("print information = % x, want die-cut 62x29", out[i:i+13])
	}
}

func TestEncodeValidation(t *testing.T) {
	p, m := setup(t, "QL-700", "62")
	tests := []struct {
		name string
		job  *raster.Job
		p    labels.LabelProfile
	}{
		{"nil job", nil, p},
		{"empty job", newJob(p.Width, 0, false), p},
		{"two colours on mono model", newJob(p.Width, 1, true), p},
		{"wider than head", newJob(800, 1, false), p},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(tt.job, tt.p, m, Options{}); !apperr.IsValidation(err) {
				t.Errorf("Encode() error = %v, want validation error", err)
			}
		})
	}
}

func TestStatusRequest(t *testing.T) {
	_, m := setup(t, "QL-720NW", "62")
	got := StatusRequest(m)
	if len(got) != 205 || !bytes.HasSuffix(got, []byte{0x1B, 0x40, 0x1B, 0x69, 0x53}) {
		t.Errorf("StatusRequest() = % x", got[200:])
	}
}

func frame(mut func(b []byte)) []byte {
	b := make([]byte, StatusSize)
	b[0], b[1], b[2], b[3] = 0x80, 0x20, 'B', '4'
	b[10], b[11] = 62, 0x0A
	if mut != nil {
		mut(b)
	}
	return b
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(frame(nil))
	if err != nil {
		t.Fatalf("ParseStatus() error = %v", err)
	}
	if s.MediaWidth != 62 || s.Type != StatusReply || !s.Done() || s.Err() != nil {
		t.Errorf("ParseStatus() = %+v, want healthy 62mm reply", s)
	}

	s, _ = ParseStatus(frame(func(b []byte) { b[8], b[9], b[18] = 0x01, 0x10, byte(StatusError) }))
	var pe *PrinterError
	if !errors.As(s.Err(), &pe) {
		t.Fatalf("Err() = %v, want *PrinterError", s.Err())
	}
	if len(pe.Conditions) != 2 || pe.Conditions[0] != "no media" || pe.Conditions[1] != "cover open" {
		t.Errorf("Conditions = %v, want [no media cover open]", pe.Conditions)
	}

	s, _ = ParseStatus(frame(func(b []byte) { b[18] = byte(StatusPhaseChange) }))
	if s.Done() {
		t.Error("phase change reported as done")
	}
}

func TestParseStatusMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"short", frame(nil)[:31]},
		{"long", append(frame(nil), 0)},
		{"bad header", frame(func(b []byte) { b[0] = 0 })},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseStatus(tt.in); !errors.Is(err, ErrMalformedStatus) {
				t.Errorf("ParseStatus() error = %v, want ErrMalformedStatus", err)
			}
		})
	}
}
