package telemetry

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Field names a snapshot field that telemetry can populate
type Field string

const (
	FieldDistanceFront Field = "distances.front"
	FieldDistanceRear  Field = "distances.rear"
	FieldTemperature1  Field = "temperatures.t1"
	FieldTemperature2  Field = "temperatures.t2"
	FieldAccelX        Field = "motion.accel.x"
	FieldAccelY        Field = "motion.accel.y"
	FieldAccelZ        Field = "motion.accel.z"
	FieldGyroX         Field = "motion.gyro.x"
	FieldGyroY         Field = "motion.gyro.y"
	FieldGyroZ         Field = "motion.gyro.z"
	FieldDrive         Field = "flags.drive"
	FieldBrush         Field = "flags.brush"
	FieldDisoriented   Field = "flags.disoriented"
	FieldCounter       Field = "counter"
	FieldCleanPercent  Field = "cleaningPercent"
)

// FieldKind is the decode type of a field
type FieldKind int

const (
	KindScalar FieldKind = iota
	KindFlag
	KindPercent
)

func (k FieldKind) String() string {
	switch k {
	case KindFlag:
		return "flag"
	case KindPercent:
		return "percent"
	default:
		return "scalar"
	}
}

// fieldApplier writes one decoded option into a snapshot, keeping the old value on None
type fieldApplier struct {
	kind  FieldKind
	apply func(s *Snapshot, o Option[float64])
}

func scalar(get func(s *Snapshot) *float64) fieldApplier {
	return fieldApplier{
		kind: KindScalar,
		apply: func(s *Snapshot, o Option[float64]) {
			p := get(s)
			*p = Keep(*p, o)
		},
	}
}

func flag(get func(s *Snapshot) *bool) fieldApplier {
	return fieldApplier{
		kind: KindFlag,
		apply: func(s *Snapshot, o Option[float64]) {
			p := get(s)
			*p = Keep(*p, Map(o, asFlag))
		},
	}
}

var appliers = map[Field]fieldApplier{
	FieldDistanceFront: scalar(func(s *Snapshot) *float64 { return &s.Distances.Front }),
	FieldDistanceRear:  scalar(func(s *Snapshot) *float64 { return &s.Distances.Rear }),
	FieldTemperature1:  scalar(func(s *Snapshot) *float64 { return &s.Temperatures.T1 }),
	FieldTemperature2:  scalar(func(s *Snapshot) *float64 { return &s.Temperatures.T2 }),
	FieldAccelX:        scalar(func(s *Snapshot) *float64 { return &s.Motion.Accel.X }),
	FieldAccelY:        scalar(func(s *Snapshot) *float64 { return &s.Motion.Accel.Y }),
	FieldAccelZ:        scalar(func(s *Snapshot) *float64 { return &s.Motion.Accel.Z }),
	FieldGyroX:         scalar(func(s *Snapshot) *float64 { return &s.Motion.Gyro.X }),
	FieldGyroY:         scalar(func(s *Snapshot) *float64 { return &s.Motion.Gyro.Y }),
	FieldGyroZ:         scalar(func(s *Snapshot) *float64 { return &s.Motion.Gyro.Z }),
	FieldCounter:       scalar(func(s *Snapshot) *float64 { return &s.Counter }),
	FieldDrive:         flag(func(s *Snapshot) *bool { return &s.Flags.Drive }),
	FieldBrush:         flag(func(s *Snapshot) *bool { return &s.Flags.Brush }),
	FieldDisoriented:   flag(func(s *Snapshot) *bool { return &s.Flags.Disoriented }),
	// The percent field is applied by the mapper according to the progress policy.
	FieldCleanPercent: {kind: KindPercent},
}

// Kind returns the decode type of f
func (f Field) Kind() FieldKind {
	return appliers[f].kind
}

// Known reports whether f names a snapshot field
func (f Field) Known() bool {
	_, ok := appliers[f]
	return ok
}

// KnownFields returns every field name, sorted
func KnownFields() []string {
	names := make([]string, 0, len(appliers))
	for f := range appliers {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// FieldSpec maps one telemetry key to one snapshot field
type FieldSpec struct {
	Key   string
	Field Field
}

// FieldTable is the declarative telemetry-key to snapshot-field mapping of one deployment
type FieldTable []FieldSpec

// Has reports whether the table populates f
func (t FieldTable) Has(f Field) bool {
	for _, spec := range t {
		if spec.Field == f {
			return true
		}
	}
	return false
}

// Keys returns the telemetry keys the table reads
func (t FieldTable) Keys() []string {
	keys := make([]string, len(t))
	for i, spec := range t {
		keys[i] = spec.Key
	}
	return keys
}

// Built-in deployment variants
const (
	VariantTOF      = "tof"
	VariantTOFShort = "tof-short"
	VariantThermal  = "thermal"
)

var flagSpecs = FieldTable{
	{Key: "DRIVE", Field: FieldDrive},
	{Key: "BRUSH", Field: FieldBrush},
	{Key: "DISORIENTED", Field: FieldDisoriented},
	{Key: "CLEAN_PERCENT", Field: FieldCleanPercent},
}

func motionSpecs(ax, ay, az, gx, gy, gz string) FieldTable {
	return FieldTable{
		{Key: ax, Field: FieldAccelX},
		{Key: ay, Field: FieldAccelY},
		{Key: az, Field: FieldAccelZ},
		{Key: gx, Field: FieldGyroX},
		{Key: gy, Field: FieldGyroY},
		{Key: gz, Field: FieldGyroZ},
	}
}

func concat(tables ...FieldTable) FieldTable {
	var out FieldTable
	for _, t := range tables {
		out = append(out, t...)
	}
	return out
}

var variants = map[string]FieldTable{
	VariantTOF: concat(
		FieldTable{{Key: "TOF1", Field: FieldDistanceFront}, {Key: "TOF2", Field: FieldDistanceRear}},
		motionSpecs("ACCX", "ACCY", "ACCZ", "GYRX", "GYRY", "GYRZ"),
		flagSpecs,
	),
	VariantTOFShort: concat(
		FieldTable{{Key: "TOF1", Field: FieldDistanceFront}, {Key: "TOF2", Field: FieldDistanceRear}},
		motionSpecs("AX", "AY", "AZ", "GX", "GY", "GZ"),
		flagSpecs,
	),
	VariantThermal: concat(
		FieldTable{{Key: "T1", Field: FieldTemperature1}, {Key: "T2", Field: FieldTemperature2}},
		motionSpecs("AX", "AY", "AZ", "GX", "GY", "GZ"),
		FieldTable{{Key: "C", Field: FieldCounter}},
	),
}

// VariantTable returns a copy of the built-in table for a deployment variant
func VariantTable(name string) (FieldTable, error) {
	t, ok := variants[name]
	if !ok {
		return nil, fmt.Errorf("unknown variant %q", name)
	}
	out := make(FieldTable, len(t))
	copy(out, t)
	return out, nil
}

// TableFromMappings builds a custom table from config entries
func TableFromMappings(mappings []FieldMapping) (FieldTable, error) {
	t := make(FieldTable, 0, len(mappings))
	seen := make(map[string]bool, len(mappings))
	for i, m := range mappings {
		if m.Key == "" {
			return nil, fmt.Errorf("fields[%d].key is required", i)
		}
		f := Field(m.Field)
		if !f.Known() {
			return nil, fmt.Errorf("fields[%d].field %q is not a known field (known: %s)",
				i, m.Field, strings.Join(KnownFields(), ", "))
		}
		if seen[m.Key] {
			return nil, fmt.Errorf("fields[%d].key %q is mapped twice", i, m.Key)
		}
		seen[m.Key] = true
		t = append(t, FieldSpec{Key: m.Key, Field: f})
	}
	return t, nil
}

// clampPercent rounds v and clamps it to [0,100]
func clampPercent(v float64) int {
	return int(math.Max(0, math.Min(100, math.Round(v))))
}
