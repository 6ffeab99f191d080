// Package inventory holds the cryo-storage document model and the pure
// validation rules over it. Nothing in this package performs I/O.
package inventory

import "time"

const DateLayout = "2006-01-02"

// Document is the whole persisted unit: meta plus the record list.
// The store hands out copies; mutations return a full replacement copy.
type Document struct {
	Meta    Meta     `yaml:"meta" json:"meta"`
	Records []Record `yaml:"inventory" json:"inventory"`
}

type Meta struct {
	BoxCount    int        `yaml:"box_count" json:"box_count"`
	Layout      BoxLayout  `yaml:"box_layout" json:"box_layout"`
	FieldSchema []FieldDef `yaml:"field_schema,omitempty" json:"field_schema,omitempty"`
	InstanceID  string     `yaml:"instance_id,omitempty" json:"instance_id,omitempty"`
}

// BoxLayout describes the grid inside each box. Positions are numbered
// row-major starting at 1.
type BoxLayout struct {
	Rows int `yaml:"rows" json:"rows"`
	Cols int `yaml:"cols" json:"cols"`
}

func (l BoxLayout) Slots() int {
	rows, cols := l.Rows, l.Cols
	if rows <= 0 {
		rows = 9
	}
	if cols <= 0 {
		cols = 9
	}
	return rows * cols
}

// FieldDef declares one user-defined record field.
type FieldDef struct {
	Key      string `yaml:"key" json:"key"`
	Label    string `yaml:"label,omitempty" json:"label,omitempty"`
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

// Record is one physical tube (possibly occupying several slots at creation).
type Record struct {
	ID        int            `yaml:"id" json:"id"`
	CellLine  string         `yaml:"cell_line,omitempty" json:"cell_line,omitempty"`
	ShortName string         `yaml:"short_name,omitempty" json:"short_name,omitempty"`
	Box       int            `yaml:"box" json:"box"`
	Positions []int          `yaml:"positions" json:"positions"`
	FrozenAt  string         `yaml:"frozen_at" json:"frozen_at"`
	Events    []Event        `yaml:"thaw_events,omitempty" json:"thaw_events,omitempty"`
	Note      string         `yaml:"note,omitempty" json:"note,omitempty"`
	Fields    map[string]any `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Event is one append-only entry in a record's history.
type Event struct {
	Date       string `yaml:"date" json:"date"`
	Action     Action `yaml:"action" json:"action"`
	Positions  []int  `yaml:"positions" json:"positions"`
	Note       string `yaml:"note,omitempty" json:"note,omitempty"`
	ToBox      int    `yaml:"to_box,omitempty" json:"to_box,omitempty"`
	ToPosition int    `yaml:"to_position,omitempty" json:"to_position,omitempty"`
}

func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func ValidDate(s string) bool {
	_, ok := ParseDate(s)
	return ok
}

// Clone returns a deep copy so pipeline candidates never alias stored state.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{Meta: d.Meta}
	out.Meta.FieldSchema = append([]FieldDef(nil), d.Meta.FieldSchema...)
	out.Records = make([]Record, len(d.Records))
	for i, rec := range d.Records {
		out.Records[i] = rec.Clone()
	}
	return out
}

func (r Record) Clone() Record {
	out := r
	out.Positions = append([]int(nil), r.Positions...)
	out.Events = make([]Event, len(r.Events))
	for i, ev := range r.Events {
		out.Events[i] = ev
		out.Events[i].Positions = append([]int(nil), ev.Positions...)
	}
	if r.Fields != nil {
		out.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// NextID returns the smallest unused positive record ID.
func NextID(records []Record) int {
	max := 0
	for _, rec := range records {
		if rec.ID > max {
			max = rec.ID
		}
	}
	return max + 1
}

// FindRecord returns a pointer into records for the given id, or nil.
func FindRecord(records []Record, id int) *Record {
	for i := range records {
		if records[i].ID == id {
			return &records[i]
		}
	}
	return nil
}
