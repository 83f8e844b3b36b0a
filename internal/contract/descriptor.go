package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// descriptor mirrors the minimal required shape of a data product
// descriptor document. Only the fields the publisher consumes are
// declared; everything else in the document is ignored.
type descriptor struct {
	InterfaceComponents struct {
		OutputPorts []port `json:"outputPorts"`
		InputPorts  []port `json:"inputPorts"`
	} `json:"interfaceComponents"`
	InternalComponents struct {
		ApplicationComponents []struct {
			Configs struct {
				ProjectFolder string `json:"project_folder"`
			} `json:"configs"`
		} `json:"applicationComponents"`
	} `json:"internalComponents"`
}

type port struct {
	Promises struct {
		API struct {
			Definition struct {
				Schema struct {
					DatabaseName string     `json:"databaseName"`
					Tables       []tableDef `json:"tables"`
				} `json:"schema"`
				Services map[string]struct {
					CatalogInfo struct {
						Namespace string `json:"namespace"`
						Branch    string `json:"branch"`
					} `json:"catalogInfo"`
				} `json:"services"`
			} `json:"definition"`
		} `json:"api"`
	} `json:"promises"`
}

type tableDef struct {
	Quality    []rawTableRule    `json:"quality"`
	Properties orderedProperties `json:"properties"`
}

type rawTableRule struct {
	Rule           string  `json:"rule"`
	Unit           string  `json:"unit"`
	MustBeLessThan flexInt `json:"mustBeLessThan"`
}

type rawColumnRule struct {
	Rule          string  `json:"rule"`
	MustBeEqualTo flexInt `json:"mustBeEqualTo"`
}

type propertyDef struct {
	Name    string
	Quality []rawColumnRule
}

// orderedProperties preserves the declaration order of the table's
// column properties. encoding/json maps lose key order, and rule
// compilation must run in declared column order, so the properties
// object is walked token by token.
type orderedProperties []propertyDef

func (p *orderedProperties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("properties: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("properties: expected key, got %v", tok)
		}
		var val struct {
			Quality []rawColumnRule `json:"quality"`
		}
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("properties: column %s: %w", name, err)
		}
		*p = append(*p, propertyDef{Name: name, Quality: val.Quality})
	}

	// consume closing '}'
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// flexInt accepts thresholds serialized as either JSON numbers or
// quoted strings; descriptors in the wild use both.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("threshold %q is not an integer", s)
	}
	*f = flexInt(n)
	return nil
}

const productionService = "production"

// Parse decodes a descriptor document into a Product. It fails with a
// *ParseError when a required field is absent and with a
// *NamespaceMismatchError when a declared input port lives in a
// different namespace than the output port.
func Parse(data []byte) (*Product, error) {
	var d descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, &ParseError{Field: "descriptor", Reason: err.Error()}
	}

	if len(d.InterfaceComponents.OutputPorts) == 0 {
		return nil, &ParseError{Field: "interfaceComponents.outputPorts"}
	}
	def := d.InterfaceComponents.OutputPorts[0].Promises.API.Definition

	name := def.Schema.DatabaseName
	if name == "" {
		return nil, &ParseError{Field: "schema.databaseName"}
	}
	if len(def.Schema.Tables) == 0 {
		return nil, &ParseError{Field: "schema.tables"}
	}

	svc, ok := def.Services[productionService]
	if !ok {
		return nil, &ParseError{Field: "services.production"}
	}
	namespace := svc.CatalogInfo.Namespace
	branch := svc.CatalogInfo.Branch
	if namespace == "" {
		return nil, &ParseError{Field: "services.production.catalogInfo.namespace"}
	}
	if branch == "" {
		return nil, &ParseError{Field: "services.production.catalogInfo.branch"}
	}

	if len(d.InternalComponents.ApplicationComponents) == 0 {
		return nil, &ParseError{Field: "internalComponents.applicationComponents"}
	}
	projectDir := d.InternalComponents.ApplicationComponents[0].Configs.ProjectFolder
	if projectDir == "" {
		return nil, &ParseError{Field: "applicationComponents[0].configs.project_folder"}
	}

	// Single-namespace products only: every declared input port must
	// live in the output port's namespace.
	for _, in := range d.InterfaceComponents.InputPorts {
		if insvc, ok := in.Promises.API.Definition.Services[productionService]; ok {
			if ns := insvc.CatalogInfo.Namespace; ns != "" && ns != namespace {
				return nil, &NamespaceMismatchError{Input: ns, Output: namespace}
			}
		}
	}

	table := def.Schema.Tables[0]
	p := &Product{
		Name:       name,
		Namespace:  namespace,
		Branch:     branch,
		ProjectDir: projectDir,
	}

	for _, q := range table.Quality {
		p.TableRules = append(p.TableRules, TableRule{
			Rule:           q.Rule,
			Unit:           q.Unit,
			MustBeLessThan: int(q.MustBeLessThan),
		})
	}

	for _, prop := range table.Properties {
		if len(prop.Quality) == 0 {
			continue
		}
		col := ColumnRules{Column: prop.Name}
		for _, q := range prop.Quality {
			col.Rules = append(col.Rules, ColumnRule{
				Rule:          q.Rule,
				MustBeEqualTo: int(q.MustBeEqualTo),
			})
		}
		p.ColumnRules = append(p.ColumnRules, col)
	}

	return p, nil
}
