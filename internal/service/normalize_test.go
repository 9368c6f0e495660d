package service

import (
	"reflect"
	"testing"
)

func TestNormalizeRowsRecordShapes(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{
			name: "records with _fields",
			json: `{"records":[{"keys":["city"],"_fields":["Seoul"]},{"keys":["city"],"_fields":["Busan"]}]}`,
		},
		{
			name: "records with values",
			json: `{"records":[{"keys":["city"],"values":["Seoul"]},{"keys":["city"],"values":["Busan"]}]}`,
		},
		{
			name: "records nested under result",
			json: `{"result":{"records":[{"keys":["city"],"_fields":["Seoul"]},{"keys":["city"],"_fields":["Busan"]}]}}`,
		},
		{
			name: "fields and values under data",
			json: `{"data":{"fields":["city"],"values":[["Seoul"],["Busan"]]}}`,
		},
		{
			name: "flat fields and values",
			json: `{"fields":["city"],"values":[["Seoul"],["Busan"]]}`,
		},
		{
			name: "transactional results",
			json: `{"results":[{"columns":["city"],"data":[{"row":["Seoul"]},{"row":["Busan"]}]}]}`,
		},
		{
			name: "transactional results nested under result",
			json: `{"result":{"results":[{"columns":["city"],"data":[{"row":["Seoul"]},{"row":["Busan"]}]}]}}`,
		},
		{
			name: "transactional results double nested",
			json: `{"data":{"result":{"results":[{"columns":["city"],"data":[{"row":["Seoul"]},{"row":["Busan"]}]}]}}}`,
		},
		{
			name: "transactional data as bare value arrays",
			json: `{"results":[{"columns":["city"],"data":[["Seoul"],["Busan"]]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, ok := NormalizeRowsJSON([]byte(tt.json))
			if !ok {
				t.Fatalf("shape not recognized")
			}
			if len(rows) != 2 {
				t.Fatalf("expected 2 rows, got %d", len(rows))
			}
			for i, want := range []string{"Seoul", "Busan"} {
				got, _ := rows[i].Get("city")
				if got != want {
					t.Fatalf("row %d: expected %q, got %v", i, want, got)
				}
			}
		})
	}
}

func TestNormalizeRowsUnrecognizedShape(t *testing.T) {
	cases := []string{
		`{"stuff":[1,2,3]}`,
		`{"records":"not a list"}`,
		`{"records":[{"keys":["a","b"],"_fields":["only-one"]}]}`,
		`{"fields":["a"],"values":[["x","extra"]]}`,
		`not json at all`,
		`{}`,
	}
	for _, raw := range cases {
		if rows, ok := NormalizeRowsJSON([]byte(raw)); ok {
			t.Fatalf("payload %q: expected rejection, got %d rows", raw, len(rows))
		}
	}
}

func TestNormalizeRowsPreservesColumnOrder(t *testing.T) {
	raw := `{"fields":["b","a","c"],"values":[[1,2,3]]}`
	rows, ok := NormalizeRowsJSON([]byte(raw))
	if !ok || len(rows) != 1 {
		t.Fatalf("normalize failed")
	}
	if !reflect.DeepEqual(rows[0].Columns, []string{"b", "a", "c"}) {
		t.Fatalf("column order not preserved: %v", rows[0].Columns)
	}
	first, ok := rows[0].First()
	if !ok || first != float64(1) {
		t.Fatalf("first column should follow insertion order, got %v", first)
	}
}

func TestNormalizeValueDriverInteger(t *testing.T) {
	raw := `{"records":[{"keys":["n"],"_fields":[{"low":42,"high":0}]}]}`
	rows, ok := NormalizeRowsJSON([]byte(raw))
	if !ok {
		t.Fatalf("normalize failed")
	}
	got, _ := rows[0].Get("n")
	if got != float64(42) {
		t.Fatalf("expected low part 42, got %v", got)
	}
}

func TestNormalizeValueKeepsNodeProperties(t *testing.T) {
	raw := `{"records":[{"keys":["item"],"_fields":[{"properties":{"itemId":"i-001","name":"lamp"}}]}]}`
	rows, ok := NormalizeRowsJSON([]byte(raw))
	if !ok {
		t.Fatalf("normalize failed")
	}
	got, _ := rows[0].Get("item")
	obj, ok := got.(map[string]interface{})
	if !ok {
		t.Fatalf("node object should survive normalization, got %T", got)
	}
	props, ok := obj["properties"].(map[string]interface{})
	if !ok || props["itemId"] != "i-001" {
		t.Fatalf("properties should be preserved, got %v", obj)
	}
}

func TestNormalizeValueUnwrapsSingleValue(t *testing.T) {
	raw := `{"records":[{"keys":["n"],"_fields":[{"value":"wrapped"}]}]}`
	rows, ok := NormalizeRowsJSON([]byte(raw))
	if !ok {
		t.Fatalf("normalize failed")
	}
	got, _ := rows[0].Get("n")
	if got != "wrapped" {
		t.Fatalf("expected unwrap to %q, got %v", "wrapped", got)
	}
}
