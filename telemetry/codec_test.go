package telemetry

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]float64
	}{
		{
			name: "comma separated",
			raw:  "TOF1:123.4,TOF2:88.0,DRIVE:1",
			want: map[string]float64{"TOF1": 123.4, "TOF2": 88.0, "DRIVE": 1},
		},
		{
			name: "space separated",
			raw:  "T1:21.5 T2:22 AX:-0.01 C:7",
			want: map[string]float64{"T1": 21.5, "T2": 22, "AX": -0.01, "C": 7},
		},
		{
			name: "mixed separators and runs",
			raw:  "  A:1,, B:2 ,C:3  ",
			want: map[string]float64{"A": 1, "B": 2, "C": 3},
		},
		{
			name: "empty string",
			raw:  "",
			want: map[string]float64{},
		},
		{
			name: "pair without colon dropped",
			raw:  "TOF1:10,GARBAGE,TOF2:20",
			want: map[string]float64{"TOF1": 10, "TOF2": 20},
		},
		{
			name: "non-numeric value dropped",
			raw:  "TOF1:abc,TOF2:5",
			want: map[string]float64{"TOF2": 5},
		},
		{
			name: "empty key dropped",
			raw:  ":5,TOF2:6",
			want: map[string]float64{"TOF2": 6},
		},
		{
			name: "empty value dropped",
			raw:  "TOF1:,TOF2:6",
			want: map[string]float64{"TOF2": 6},
		},
		{
			name: "split on first colon only",
			raw:  "A:1:2,B:3",
			want: map[string]float64{"B": 3},
		},
		{
			name: "NaN and Inf dropped",
			raw:  "A:NaN,B:Inf,C:-Inf,D:4",
			want: map[string]float64{"D": 4},
		},
		{
			name: "duplicate key last wins",
			raw:  "TOF1:1,TOF1:2",
			want: map[string]float64{"TOF1": 2},
		},
		{
			name: "keys are case sensitive",
			raw:  "tof1:1,TOF1:2",
			want: map[string]float64{"tof1": 1, "TOF1": 2},
		},
		{
			name: "scientific notation",
			raw:  "GYRX:1e-3",
			want: map[string]float64{"GYRX": 0.001},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.raw))
		})
	}
}

func TestCodec_CustomDelimiters(t *testing.T) {
	c := Codec{Delimiters: ";"}
	got := c.Decode("A:1;B:2 C:3")
	// Space is not a delimiter here, so "B:2 C:3" is one malformed pair.
	assert.Equal(t, map[string]float64{"A": 1}, got)
}

func TestDecode_OrderIndependent(t *testing.T) {
	a := Decode("TOF1:1,TOF2:2,DRIVE:0,BRUSH:1")
	b := Decode("BRUSH:1,DRIVE:0,TOF2:2,TOF1:1")
	assert.Equal(t, a, b)
}

func TestDecode_Idempotent(t *testing.T) {
	raw := "TOF1:12.5,ACCX:-0.25,DISORIENTED:1"
	first := Decode(raw)

	// Re-encoding the decoded pairs decodes to the same map.
	var parts []string
	for k, v := range first {
		parts = append(parts, k+":"+strconv.FormatFloat(v, 'g', -1, 64))
	}
	second := Decode(strings.Join(parts, ","))
	assert.Equal(t, first, second)
}

func FuzzDecode(f *testing.F) {
	f.Add("TOF1:123.4,TOF2:88.0,DRIVE:1")
	f.Add("T1:21 T2:22 C:1")
	f.Add(":::,,,  ")
	f.Add("A:1e309,B:-0")

	f.Fuzz(func(t *testing.T, raw string) {
		out := Decode(raw)
		for k, v := range out {
			if k == "" {
				t.Fatalf("empty key decoded from %q", raw)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite value %v for %q", v, k)
			}
		}
	})
}
