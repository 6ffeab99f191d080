package ops

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cryobank/contract"
	"cryobank/inventory"
)

// exportCoreColumns is the stable leading column order of a snapshot
// export; the document's declared custom fields follow.
var exportCoreColumns = []string{
	"id", "cell_line", "short_name", "box", "position", "frozen_at", "note",
}

// ExportCSV writes the full record list to a CSV file and reports what was
// written. Rows sort by box, then first position, then id, so consecutive
// exports of the same document diff cleanly.
func (s *Service) ExportCSV(path string) contract.Result {
	if strings.TrimSpace(path) == "" {
		return contract.Failure(contract.CodeValidationFailed, "output path is required")
	}
	doc, failRes, ok := s.load()
	if !ok {
		return failRes
	}

	columns := exportColumns(doc.Meta)
	records := append([]inventory.Record(nil), doc.Records...)
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Box != b.Box {
			return a.Box < b.Box
		}
		if fa, fb := firstPosition(a), firstPosition(b); fa != fb {
			return fa < fb
		}
		return a.ID < b.ID
	})

	abs, err := filepath.Abs(path)
	if err != nil {
		return contract.Failure(contract.CodeWriteFailed, err.Error())
	}
	f, err := os.Create(abs)
	if err != nil {
		return contract.Failure(contract.CodeWriteFailed, fmt.Sprintf("create export file: %v", err))
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return contract.Failure(contract.CodeWriteFailed, err.Error())
	}
	for _, rec := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = exportValue(rec, col)
		}
		if err := w.Write(row); err != nil {
			return contract.Failure(contract.CodeWriteFailed, err.Error())
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return contract.Failure(contract.CodeWriteFailed, err.Error())
	}

	s.log.Info().Str("path", abs).Int("records", len(records)).Msg("inventory exported")
	return contract.Success(map[string]any{
		"path":    abs,
		"count":   len(records),
		"columns": columns,
	})
}

func exportColumns(meta inventory.Meta) []string {
	columns := append([]string(nil), exportCoreColumns...)
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		seen[c] = true
	}
	for _, def := range meta.FieldSchema {
		key := strings.TrimSpace(def.Key)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		columns = append(columns, key)
	}
	return columns
}

func exportValue(rec inventory.Record, column string) string {
	switch column {
	case "id":
		return strconv.Itoa(rec.ID)
	case "cell_line":
		return rec.CellLine
	case "short_name":
		return rec.ShortName
	case "box":
		return strconv.Itoa(rec.Box)
	case "position":
		if len(rec.Positions) == 0 {
			return ""
		}
		return inventory.FormatPositions(rec.Positions)
	case "frozen_at":
		return rec.FrozenAt
	case "note":
		return rec.Note
	default:
		if v, ok := rec.Fields[column]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}
}

func firstPosition(rec inventory.Record) int {
	if len(rec.Positions) == 0 {
		return 1 << 30
	}
	return rec.Positions[0]
}
