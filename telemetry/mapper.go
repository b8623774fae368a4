package telemetry

// Mapper merges decoded telemetry into the previous snapshot using a field table
type Mapper struct {
	Table  FieldTable
	Policy ProgressPolicy
}

// NewMapper creates a mapper for the given table and progress policy
func NewMapper(table FieldTable, policy ProgressPolicy) *Mapper {
	return &Mapper{Table: table, Policy: policy}
}

// Merge returns prev with every field present in decoded replaced.
//
// Fields missing from decoded keep prev's value, so an empty map is an
// identity merge. Connection state and Active are left to the caller.
// A DISORIENTED value that is present and non-zero replaces Errors with
// the single DisorientedWarning. CLEAN_PERCENT only raises CleaningPercent
// under PolicyAuthoritative.
func (m *Mapper) Merge(decoded map[string]float64, prev Snapshot) Snapshot {
	next := prev.Clone()

	for _, spec := range m.Table {
		o := lookup(decoded, spec.Key)
		if !o.IsSome() {
			continue
		}

		if spec.Field.Kind() == KindPercent {
			if m.Policy == PolicyAuthoritative {
				reported, _ := Map(o, clampPercent).Get()
				next.CleaningPercent = max(next.CleaningPercent, reported)
			}
			continue
		}

		if a, ok := appliers[spec.Field]; ok && a.apply != nil {
			a.apply(&next, o)
		}
	}

	if v, ok := m.disorientedValue(decoded); ok && asFlag(v) {
		next.Errors = []string{DisorientedWarning}
	}

	return next
}

// Matches reports whether decoded carries at least one key the table reads
func (m *Mapper) Matches(decoded map[string]float64) bool {
	for _, spec := range m.Table {
		if _, ok := decoded[spec.Key]; ok {
			return true
		}
	}
	return false
}

// DerivesActivity reports whether the table carries a drive flag.
// Without one, a successful poll alone marks the robot active.
func (m *Mapper) DerivesActivity() bool {
	return m.Table.Has(FieldDrive)
}

func (m *Mapper) disorientedValue(decoded map[string]float64) (float64, bool) {
	for _, spec := range m.Table {
		if spec.Field != FieldDisoriented {
			continue
		}
		if v, ok := decoded[spec.Key]; ok {
			return v, true
		}
	}
	return 0, false
}
