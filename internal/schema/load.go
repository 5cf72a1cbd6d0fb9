package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// File layout of a declarative form-schema asset (.yaml, .yml or .json).
type fileSchema struct {
	Form          string          `yaml:"form" json:"form"`
	Title         string          `yaml:"title" json:"title"`
	Fields        []fileField     `yaml:"fields" json:"fields"`
	SignatureSets []fileSignature `yaml:"signature_sets" json:"signature_sets"`
}

type fileField struct {
	ID         string    `yaml:"id" json:"id"`
	Kind       string    `yaml:"kind" json:"kind"`
	Label      string    `yaml:"label" json:"label"`
	Step       int       `yaml:"step" json:"step"`
	Required   bool      `yaml:"required" json:"required"`
	RequiredIf string    `yaml:"required_if" json:"required_if"`
	Min        *float64  `yaml:"min" json:"min"`
	Max        *float64  `yaml:"max" json:"max"`
	MaxLength  int       `yaml:"max_length" json:"max_length"`
	Pattern    string    `yaml:"pattern" json:"pattern"`
	Values     []string  `yaml:"values" json:"values"`
	VisibleIf  string    `yaml:"visible_if" json:"visible_if"`
	Tolerance  float64   `yaml:"tolerance" json:"tolerance"`
	Derive     *fileDerv `yaml:"derive" json:"derive"`

	Columns       []fileColumn `yaml:"columns" json:"columns"`
	PairedColumns []string     `yaml:"paired_columns" json:"paired_columns"`
	AmountColumn  string       `yaml:"amount_column" json:"amount_column"`
}

type fileDerv struct {
	DependsOn []string `yaml:"depends_on" json:"depends_on"`
	Expr      string   `yaml:"expr" json:"expr"`
}

type fileColumn struct {
	ID    string `yaml:"id" json:"id"`
	Kind  string `yaml:"kind" json:"kind"`
	Label string `yaml:"label" json:"label"`
}

type fileSignature struct {
	ID          string `yaml:"id" json:"id"`
	Signature   string `yaml:"signature" json:"signature"`
	PrintedName string `yaml:"printed_name" json:"printed_name"`
	Date        string `yaml:"date" json:"date"`
	RequiredIf  string `yaml:"required_if" json:"required_if"`
}

// Load reads a schema asset from disk and builds it. Called once at
// process start; any error is fatal to startup.
func Load(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema asset: %w", err)
	}

	var fs fileSchema
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &fs); err != nil {
			return nil, fmt.Errorf("parse schema asset %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(raw, &fs); err != nil {
			return nil, fmt.Errorf("parse schema asset %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported schema asset extension: %s", path)
	}

	return fromFile(&fs)
}

func fromFile(fs *fileSchema) (*Schema, error) {
	if fs.Form == "" {
		return nil, fmt.Errorf("schema asset missing form name")
	}
	fields := make([]*FieldDefinition, 0, len(fs.Fields))
	for _, ff := range fs.Fields {
		kind, err := parseKind(ff.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", ff.ID, err)
		}
		def := &FieldDefinition{
			ID:    ff.ID,
			Kind:  kind,
			Label: ff.Label,
			Step:  ff.Step,
			Constraints: Constraints{
				Required:   ff.Required,
				RequiredIf: ff.RequiredIf,
				Min:        ff.Min,
				Max:        ff.Max,
				MaxLength:  ff.MaxLength,
				Pattern:    ff.Pattern,
				EnumValues: ff.Values,
			},
			VisibleIf:     ff.VisibleIf,
			Tolerance:     ff.Tolerance,
			PairedColumns: ff.PairedColumns,
			AmountColumn:  ff.AmountColumn,
		}
		if ff.Derive != nil {
			def.Derive = &Derivation{DependsOn: ff.Derive.DependsOn, Expr: ff.Derive.Expr}
		}
		for _, c := range ff.Columns {
			ck, err := parseKind(c.Kind)
			if err != nil {
				return nil, fmt.Errorf("row group %q column %q: %w", ff.ID, c.ID, err)
			}
			def.Columns = append(def.Columns, RowColumn{ID: c.ID, Kind: ck, Label: c.Label})
		}
		fields = append(fields, def)
	}

	sets := make([]SignatureSet, 0, len(fs.SignatureSets))
	for _, fsig := range fs.SignatureSets {
		sets = append(sets, SignatureSet{
			ID:          fsig.ID,
			Signature:   fsig.Signature,
			PrintedName: fsig.PrintedName,
			Date:        fsig.Date,
			RequiredIf:  fsig.RequiredIf,
		})
	}

	return Build(fs.Form, fs.Title, fields, sets)
}

func parseKind(raw string) (FieldKind, error) {
	switch FieldKind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindText:
		return KindText, nil
	case KindCurrency:
		return KindCurrency, nil
	case KindPercentage:
		return KindPercentage, nil
	case KindDate:
		return KindDate, nil
	case KindBoolean:
		return KindBoolean, nil
	case KindSignature:
		return KindSignature, nil
	case KindEnum:
		return KindEnum, nil
	case KindRowGroup:
		return KindRowGroup, nil
	case "":
		return "", fmt.Errorf("missing kind")
	default:
		return "", fmt.Errorf("unknown kind %q", raw)
	}
}
