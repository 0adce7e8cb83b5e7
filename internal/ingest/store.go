package ingest

import (
	"sort"

	"github.com/steplab/stepdb/pkg/core"
)

// TableStore holds every record of one table as parallel columns: step_id,
// depends and return plus one column per attribute. The attribute schema is
// fixed by the table's first record; later records with a different key set
// are rejected.
type TableStore struct {
	name  string
	block string

	stepIDs []int64
	returns []string
	depends []*int64

	attrs    map[string][]any
	attrKeys []string
	keySet   map[string]struct{}
}

func newTableStore(name, block string) *TableStore {
	return &TableStore{
		name:   name,
		block:  block,
		attrs:  make(map[string][]any),
		keySet: make(map[string]struct{}),
	}
}

// append adds one record. The first record fixes the attribute schema and
// its column order; subsequent appends must carry the same key set.
func (s *TableStore) append(stepID int64, ret string, depends *int64, fields []rawField) error {
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		values[f.name] = f.value
	}

	if len(s.stepIDs) == 0 {
		for _, f := range fields {
			if _, dup := s.keySet[f.name]; dup {
				continue
			}
			s.keySet[f.name] = struct{}{}
			s.attrKeys = append(s.attrKeys, f.name)
		}
	} else if !s.sameSchema(values) {
		return &core.SchemaMismatchError{
			Table:       s.name,
			StepID:      stepID,
			FirstStepID: s.stepIDs[0],
			Got:         sortedKeys(values),
			Want:        s.sortedAttrKeys(),
		}
	}

	s.stepIDs = append(s.stepIDs, stepID)
	s.returns = append(s.returns, ret)
	s.depends = append(s.depends, depends)
	for _, k := range s.attrKeys {
		s.attrs[k] = append(s.attrs[k], values[k])
	}
	return nil
}

func (s *TableStore) sameSchema(values map[string]any) bool {
	if len(values) != len(s.keySet) {
		return false
	}
	for k := range values {
		if _, ok := s.keySet[k]; !ok {
			return false
		}
	}
	return true
}

func (s *TableStore) sortedAttrKeys() []string {
	keys := make([]string, len(s.attrKeys))
	copy(keys, s.attrKeys)
	sort.Strings(keys)
	return keys
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Name returns the table name.
func (s *TableStore) Name() string {
	return s.name
}

// Block returns the owning block.
func (s *TableStore) Block() string {
	return s.block
}

// Len returns the number of records.
func (s *TableStore) Len() int {
	return len(s.stepIDs)
}

// StepIDAt returns the step id of record i.
func (s *TableStore) StepIDAt(i int) int64 {
	return s.stepIDs[i]
}

// ReturnAt returns the return identifier of record i.
func (s *TableStore) ReturnAt(i int) string {
	return s.returns[i]
}

// DependsAt returns the resolved depends step id of record i, nil for
// initial steps.
func (s *TableStore) DependsAt(i int) *int64 {
	return s.depends[i]
}

// AttrKeys returns the attribute column names in first-seen order.
func (s *TableStore) AttrKeys() []string {
	out := make([]string, len(s.attrKeys))
	copy(out, s.attrKeys)
	return out
}

// Record materializes record i.
func (s *TableStore) Record(i int) core.StepRecord {
	attrs := make(map[string]any, len(s.attrKeys))
	for _, k := range s.attrKeys {
		attrs[k] = s.attrs[k][i]
	}
	return core.StepRecord{
		Table:      s.name,
		StepID:     s.stepIDs[i],
		Return:     s.returns[i],
		Depends:    s.depends[i],
		Block:      s.block,
		Attributes: attrs,
	}
}

// Frame converts the store into a frame with column order step_id, depends,
// return, then attributes in first-seen order.
func (s *TableStore) Frame() *core.Frame {
	f := core.NewFrame()

	ids := make([]any, len(s.stepIDs))
	for i, v := range s.stepIDs {
		ids[i] = v
	}
	deps := make([]any, len(s.depends))
	for i, v := range s.depends {
		if v != nil {
			deps[i] = *v
		}
	}
	rets := make([]any, len(s.returns))
	for i, v := range s.returns {
		rets[i] = v
	}

	// Column counts always match the row count here, errors can't happen.
	_ = f.AddColumn("step_id", ids)
	_ = f.AddColumn("depends", deps)
	_ = f.AddColumn("return", rets)
	for _, k := range s.attrKeys {
		values := make([]any, len(s.attrs[k]))
		copy(values, s.attrs[k])
		_ = f.AddColumn(k, values)
	}
	return f
}
