package dataset

import (
	"encoding/json"
	"errors"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/errors"
)

func TestDecodeColumns(t *testing.T) {
	snap, err := Decode([]byte(`{"id":[1,2,3],"NomProjet":["A"," B ","-"],"Recu":["2024-01-01",null,"x"]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if snap.Len() != 3 {
		t.Fatalf("Len = %d, want 3", snap.Len())
	}
	ids, ok := snap.Column("id")
	if !ok {
		t.Fatal("id column missing")
	}
	if _, isNumber := ids[0].(json.Number); !isNumber {
		t.Errorf("expected json.Number, got %T", ids[0])
	}
	if names := snap.Names(); len(names) != 3 || names[0] != "NomProjet" {
		t.Errorf("Names = %v", names)
	}
}

func TestDecodeRowsTransposes(t *testing.T) {
	snap, err := Decode([]byte(`[{"id":1,"NomProjet":"A"},{"id":2,"Recu":"2024-02-02"}]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("Len = %d, want 2", snap.Len())
	}
	recu, _ := snap.Column("Recu")
	if len(recu) != 2 || recu[0] != nil || recu[1] != "2024-02-02" {
		t.Errorf("Recu = %#v", recu)
	}
	proj, _ := snap.Column("NomProjet")
	if proj[0] != "A" || proj[1] != nil {
		t.Errorf("NomProjet = %#v", proj)
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, doc := range []string{``, `42`, `{"a":[1],"b":[1,2]}`, `{"a":`} {
		_, err := Decode([]byte(doc))
		if !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("Decode(%q) err = %v, want ErrInvalidInput", doc, err)
		}
	}
}

func TestFingerprintIgnoresShape(t *testing.T) {
	cols, err := FromColumns(map[string][]any{"id": {1, 2}, "p": {"a", "b"}})
	if err != nil {
		t.Fatal(err)
	}
	rows := FromRows([]map[string]any{{"id": 1, "p": "a"}, {"id": 2, "p": "b"}})
	if cols.ID() != rows.ID() {
		t.Errorf("fingerprints differ: %s vs %s", cols.ID(), rows.ID())
	}
	other := FromRows([]map[string]any{{"id": 1, "p": "a"}, {"id": 2, "p": "c"}})
	if other.ID() == rows.ID() {
		t.Error("different content produced the same fingerprint")
	}
}

func TestResolveAliases(t *testing.T) {
	snap, err := FromColumns(map[string][]any{
		"NomProjet":       {"x"},
		"NomProjetString": {"y"},
		"RecuString":      {"01/02/2024"},
		"Id":              {7},
	})
	if err != nil {
		t.Fatal(err)
	}
	v := DefaultSchema().Resolve(snap)
	if err := v.Err(); err != nil {
		t.Fatalf("unexpected missing columns: %v", err)
	}
	if v.Columns[FieldCategory] != "NomProjetString" {
		t.Errorf("category resolved to %q, first alias should win", v.Columns[FieldCategory])
	}
	if v.Columns[FieldDate] != "RecuString" || v.Columns[FieldRowID] != "Id" {
		t.Errorf("columns = %v", v.Columns)
	}
	if v.Archive != nil || v.Archived(0) {
		t.Error("archive column is absent and must read as not archived")
	}
}

func TestResolveMissing(t *testing.T) {
	snap, err := FromColumns(map[string][]any{"NomProjet": {"x"}})
	if err != nil {
		t.Fatal(err)
	}
	v := DefaultSchema().Resolve(snap)
	err = v.Err()
	if !errors.Is(err, apperrors.ErrMissingColumns) {
		t.Fatalf("err = %v, want ErrMissingColumns", err)
	}
	if got := v.MissingNames(); len(got) != 2 || got[0] != "date" || got[1] != "rowId" {
		t.Errorf("missing = %v", got)
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := map[any]string{
		nil:                "",
		"":                 "",
		"  ":               "",
		"-":                "",
		" - ":              "",
		" Proj1 ":          "Proj1",
		json.Number("12"):  "12",
		3.5:                "3.5",
	}
	for in, want := range tests {
		if got := NormalizeLabel(in); got != want {
			t.Errorf("NormalizeLabel(%#v) = %q, want %q", in, got, want)
		}
	}
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []any{true, "true", 1.0, 1, int64(1), json.Number("1")} {
		if !IsTruthy(v) {
			t.Errorf("IsTruthy(%#v) = false", v)
		}
	}
	for _, v := range []any{false, "false", "TRUE", "1", 0.0, 2, nil, json.Number("0")} {
		if IsTruthy(v) {
			t.Errorf("IsTruthy(%#v) = true", v)
		}
	}
}

func TestNormalizeRowID(t *testing.T) {
	tests := []struct {
		in   any
		want RowID
	}{
		{1, int64(1)},
		{int64(2), int64(2)},
		{3.0, int64(3)},
		{json.Number("4"), int64(4)},
		{json.Number("4.5"), 4.5},
		{1.5, 1.5},
		{"R-1", "R-1"},
		{" 5 ", " 5 "},
		{nil, nil},
		{true, true},
	}
	for _, tt := range tests {
		if got := NormalizeRowID(tt.in); got != tt.want {
			t.Errorf("NormalizeRowID(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
