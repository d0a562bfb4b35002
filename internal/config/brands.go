package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed brands.yaml
var defaultBrandsYAML []byte

// FieldAliases is an ordered chain of form question labels. Extraction
// takes the first label present in a submission, so renamed questions keep
// working as long as the old label stays in the chain.
type FieldAliases []string

// BrandSpec maps one brand's form questions to record fields. A nil chain
// means that brand's form does not ask the question.
type BrandSpec struct {
	Name            string       `yaml:"name"`
	Model           FieldAliases `yaml:"model"`
	Size            FieldAliases `yaml:"size"`
	Year            FieldAliases `yaml:"year"`
	Condition       FieldAliases `yaml:"condition"`
	Solution        FieldAliases `yaml:"solution"`
	PurchaseInvoice FieldAliases `yaml:"purchase_invoice"`
	SalesInvoice    FieldAliases `yaml:"sales_invoice"`
}

// CommonSpec maps the questions shared by every brand form.
type CommonSpec struct {
	Company FieldAliases `yaml:"company"`
	TaxID   FieldAliases `yaml:"tax_id"`
	Email   FieldAliases `yaml:"email"`
	Brand   FieldAliases `yaml:"brand"`
	Issue   FieldAliases `yaml:"issue"`
	Photos  FieldAliases `yaml:"photos"`
	Videos  FieldAliases `yaml:"videos"`
}

// BrandCatalog is the label catalog driving payload extraction. The
// embedded copy matches the live forms; deployments can point
// intake.brands_file at an override.
type BrandCatalog struct {
	Common   CommonSpec  `yaml:"common"`
	Brands   []BrandSpec `yaml:"brands"`
	Defaults BrandSpec   `yaml:"defaults"`
}

var defaultCatalog BrandCatalog

func init() {
	if err := yaml.Unmarshal(defaultBrandsYAML, &defaultCatalog); err != nil {
		panic(fmt.Sprintf("config: embedded brand catalog does not parse: %v", err))
	}
}

// DefaultBrandCatalog returns the embedded catalog.
func DefaultBrandCatalog() BrandCatalog {
	return defaultCatalog
}

// LoadBrandCatalog reads a catalog override from path.
func LoadBrandCatalog(path string) (BrandCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BrandCatalog{}, fmt.Errorf("reading brand catalog %s: %w", path, err)
	}
	var cat BrandCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return BrandCatalog{}, fmt.Errorf("parsing brand catalog %s: %w", path, err)
	}
	if len(cat.Brands) == 0 {
		return BrandCatalog{}, fmt.Errorf("brand catalog %s lists no brands", path)
	}
	return cat, nil
}

// Lookup finds the spec for a brand name, ignoring case.
func (c BrandCatalog) Lookup(name string) (BrandSpec, bool) {
	for _, b := range c.Brands {
		if strings.EqualFold(b.Name, name) {
			return b, true
		}
	}
	return BrandSpec{}, false
}

// Known reports whether the catalog lists the brand.
func (c BrandCatalog) Known(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// Spec returns the brand's question spec, falling back to the generic
// defaults for brands the catalog does not list.
func (c BrandCatalog) Spec(name string) BrandSpec {
	if spec, ok := c.Lookup(name); ok {
		return spec
	}
	spec := c.Defaults
	spec.Name = name
	return spec
}

// Names returns the catalog's brand names in order.
func (c BrandCatalog) Names() []string {
	names := make([]string, len(c.Brands))
	for i, b := range c.Brands {
		names[i] = b.Name
	}
	return names
}
