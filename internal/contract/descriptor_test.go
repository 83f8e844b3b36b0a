package contract

import (
	"errors"
	"testing"
)

const sampleDescriptor = `{
  "interfaceComponents": {
    "inputPorts": [
      {"promises": {"api": {"definition": {
        "services": {"production": {"catalogInfo": {"namespace": "tlc_trip_record", "branch": "main"}}}
      }}}}
    ],
    "outputPorts": [
      {"promises": {"api": {"definition": {
        "schema": {
          "databaseName": "taxi_trips",
          "tables": [{
            "quality": [
              {"rule": "freshness", "unit": "day", "mustBeLessThan": 3}
            ],
            "properties": {
              "trip_id": {"quality": [{"rule": "duplicateCount", "mustBeEqualTo": 0}]},
              "fare_amount": {"type": "number"},
              "on_scene_datetime": {"quality": [{"rule": "null", "mustBeEqualTo": "0"}]}
            }
          }]
        },
        "services": {"production": {"catalogInfo": {"namespace": "tlc_trip_record", "branch": "main"}}}
      }}}}
    ]
  },
  "internalComponents": {
    "applicationComponents": [
      {"configs": {"project_folder": "bpln_pipeline"}}
    ]
  }
}`

func TestParse_Valid(t *testing.T) {
	p, err := Parse([]byte(sampleDescriptor))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if p.Name != "taxi_trips" {
		t.Errorf("name = %s, want taxi_trips", p.Name)
	}
	if p.Namespace != "tlc_trip_record" {
		t.Errorf("namespace = %s, want tlc_trip_record", p.Namespace)
	}
	if p.Branch != "main" {
		t.Errorf("branch = %s, want main", p.Branch)
	}
	if p.ProjectDir != "bpln_pipeline" {
		t.Errorf("project dir = %s, want bpln_pipeline", p.ProjectDir)
	}

	if len(p.TableRules) != 1 || p.TableRules[0].Rule != "freshness" || p.TableRules[0].MustBeLessThan != 3 {
		t.Errorf("table rules = %+v", p.TableRules)
	}

	// Column order follows declaration; columns without quality rules
	// are skipped; string thresholds decode.
	if len(p.ColumnRules) != 2 {
		t.Fatalf("got %d column rule groups, want 2: %+v", len(p.ColumnRules), p.ColumnRules)
	}
	if p.ColumnRules[0].Column != "trip_id" {
		t.Errorf("first column = %s, want trip_id", p.ColumnRules[0].Column)
	}
	if p.ColumnRules[1].Column != "on_scene_datetime" {
		t.Errorf("second column = %s, want on_scene_datetime", p.ColumnRules[1].Column)
	}
	if p.ColumnRules[1].Rules[0].MustBeEqualTo != 0 {
		t.Errorf("string threshold decoded to %d, want 0", p.ColumnRules[1].Rules[0].MustBeEqualTo)
	}
}

func TestParse_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"no output ports", `{"interfaceComponents": {"outputPorts": []}}`},
		{"no database name", `{"interfaceComponents": {"outputPorts": [{"promises": {"api": {"definition": {
			"schema": {"tables": [{}]},
			"services": {"production": {"catalogInfo": {"namespace": "ns", "branch": "main"}}}
		}}}}]}}`},
		{"no production service", `{"interfaceComponents": {"outputPorts": [{"promises": {"api": {"definition": {
			"schema": {"databaseName": "p", "tables": [{}]},
			"services": {}
		}}}}]}}`},
		{"no project folder", `{"interfaceComponents": {"outputPorts": [{"promises": {"api": {"definition": {
			"schema": {"databaseName": "p", "tables": [{}]},
			"services": {"production": {"catalogInfo": {"namespace": "ns", "branch": "main"}}}
		}}}}]}, "internalComponents": {"applicationComponents": [{"configs": {}}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestParse_NamespaceMismatch(t *testing.T) {
	doc := `{
	  "interfaceComponents": {
	    "inputPorts": [
	      {"promises": {"api": {"definition": {
	        "services": {"production": {"catalogInfo": {"namespace": "other_ns", "branch": "main"}}}
	      }}}}
	    ],
	    "outputPorts": [
	      {"promises": {"api": {"definition": {
	        "schema": {"databaseName": "p", "tables": [{}]},
	        "services": {"production": {"catalogInfo": {"namespace": "ns", "branch": "main"}}}
	      }}}}
	    ]
	  },
	  "internalComponents": {"applicationComponents": [{"configs": {"project_folder": "pipe"}}]}
	}`

	_, err := Parse([]byte(doc))
	var nsErr *NamespaceMismatchError
	if !errors.As(err, &nsErr) {
		t.Fatalf("expected NamespaceMismatchError, got %v", err)
	}
	if nsErr.Input != "other_ns" || nsErr.Output != "ns" {
		t.Errorf("mismatch = %+v", nsErr)
	}
}
