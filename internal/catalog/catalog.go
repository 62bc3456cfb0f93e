// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package catalog loads the static model list backing GET /v1/models.
// The catalog's actual contents are an external collaborator's concern
// (spec.md §1); this package only loads whatever list is configured.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var builtinYAML []byte

// Model is one entry of the static catalog.
type Model struct {
	ID      string `yaml:"id" json:"id"`
	Object  string `yaml:"-" json:"object"`
	OwnedBy string `yaml:"owned_by" json:"owned_by"`
}

// Catalog is an immutable, loaded-once list of models.
type Catalog struct {
	models []Model
}

type fileFormat struct {
	Models []Model `yaml:"models"`
}

// Load reads the catalog from path, or the built-in list if path is
// empty (internal/config's Models.CatalogPath default).
func Load(path string) (*Catalog, error) {
	data := builtinYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("catalog: read %s: %w", path, err)
		}
		data = b
	}

	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}

	for i := range ff.Models {
		ff.Models[i].Object = "model"
	}
	return &Catalog{models: ff.Models}, nil
}

// List returns every model in catalog order.
func (c *Catalog) List() []Model {
	out := make([]Model, len(c.models))
	copy(out, c.models)
	return out
}
