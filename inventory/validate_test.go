package inventory

import (
	"strings"
	"testing"
)

func testDoc(records ...Record) *Document {
	return &Document{
		Meta:    Meta{BoxCount: 5, Layout: BoxLayout{Rows: 9, Cols: 9}},
		Records: records,
	}
}

func testRecord(id, box int, positions ...int) Record {
	return Record{
		ID:        id,
		CellLine:  "HEK293T",
		Box:       box,
		Positions: positions,
		FrozenAt:  "2025-01-15",
	}
}

func TestValidateDocumentOK(t *testing.T) {
	t.Parallel()

	report := ValidateDocument(testDoc(testRecord(1, 1, 5), testRecord(2, 1, 6, 7)))
	if !report.OK() {
		t.Fatalf("expected valid document, got errors: %v", report.Errors)
	}
}

func TestValidateDocumentDuplicateID(t *testing.T) {
	t.Parallel()

	report := ValidateDocument(testDoc(testRecord(1, 1, 5), testRecord(1, 2, 6)))
	if report.OK() {
		t.Fatal("expected duplicate id error")
	}
	if !containsSubstring(report.Errors, "duplicate id 1") {
		t.Fatalf("missing duplicate id error, got: %v", report.Errors)
	}
}

func TestValidateDocumentPositionConflict(t *testing.T) {
	t.Parallel()

	report := ValidateDocument(testDoc(testRecord(1, 1, 5), testRecord(2, 1, 5)))
	if report.OK() {
		t.Fatal("expected position conflict error")
	}
	if !containsSubstring(report.Errors, "box 1 position 5") {
		t.Fatalf("missing conflict detail, got: %v", report.Errors)
	}
}

func TestValidateDocumentConsumedPositionDoesNotConflict(t *testing.T) {
	t.Parallel()

	first := testRecord(1, 1, 5)
	first.Events = []Event{{Date: "2025-02-01", Action: ActionTakeout, Positions: []int{5}}}
	report := ValidateDocument(testDoc(first, testRecord(2, 1, 5)))
	if !report.OK() {
		t.Fatalf("consumed position must not conflict, got: %v", report.Errors)
	}
}

func TestValidateDocumentBadDates(t *testing.T) {
	t.Parallel()

	bad := testRecord(1, 1, 5)
	bad.FrozenAt = "2025-13-40"
	report := ValidateDocument(testDoc(bad))
	if report.OK() {
		t.Fatal("expected date error")
	}

	future := testRecord(1, 1, 5)
	future.FrozenAt = "2099-01-01"
	report = ValidateDocument(testDoc(future))
	if report.OK() {
		t.Fatal("expected future-date error")
	}
}

func TestValidateDocumentEventChecks(t *testing.T) {
	t.Parallel()

	rec := testRecord(1, 1, 5)
	rec.Events = []Event{{Date: "2025-02-01", Action: Action("vanish"), Positions: []int{5}}}
	report := ValidateDocument(testDoc(rec))
	if report.OK() {
		t.Fatal("expected invalid action error")
	}

	rec = testRecord(1, 1, 5)
	rec.Events = []Event{{Date: "2025-02-01", Action: ActionMove, Positions: []int{5}}}
	report = ValidateDocument(testDoc(rec))
	if report.OK() {
		t.Fatal("expected missing move destination error")
	}
}

func TestValidateDocumentRequiredSchemaField(t *testing.T) {
	t.Parallel()

	doc := testDoc(testRecord(1, 1, 5))
	doc.Meta.FieldSchema = []FieldDef{{Key: "plasmid_id", Required: true}}
	report := ValidateDocument(doc)
	if report.OK() {
		t.Fatal("expected missing required field error")
	}
	if !containsSubstring(report.Errors, "plasmid_id") {
		t.Fatalf("missing field name in error, got: %v", report.Errors)
	}
}

func TestFormatErrorsTruncates(t *testing.T) {
	t.Parallel()

	report := Report{Errors: []string{"a", "b", "c", "d", "e", "f", "g", "h"}}
	msg := report.FormatErrors("blocked")
	if !strings.Contains(msg, "and 2 more") {
		t.Fatalf("expected truncation marker, got: %s", msg)
	}
}

func containsSubstring(list []string, sub string) bool {
	for _, item := range list {
		if strings.Contains(item, sub) {
			return true
		}
	}
	return false
}
