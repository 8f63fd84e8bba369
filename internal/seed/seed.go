// Package seed loads system-default requirement templates from YAML.
package seed

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/coverdesk/coverdesk/internal/compliance"
	"github.com/coverdesk/coverdesk/internal/model"
	"github.com/coverdesk/coverdesk/internal/store"
)

// templateSpec is the YAML shape of one system-default template.
type templateSpec struct {
	Name      string                      `yaml:"name"`
	Category  model.EntityCategory        `yaml:"category"`
	RiskLevel model.RiskLevel             `yaml:"risk_level"`
	Coverages []model.CoverageRequirement `yaml:"coverages"`
}

type fileSpec struct {
	Templates []templateSpec `yaml:"templates"`
}

// TemplateUpserter is implemented by stores that support idempotent bulk
// template loading.
type TemplateUpserter interface {
	UpsertTemplates(ctx context.Context, templates []model.Template) (int64, error)
}

// ParseFile reads and validates a seed file, returning system-default
// templates (OrgID empty) ready to load.
func ParseFile(path string) ([]model.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates seed YAML.
func Parse(data []byte) ([]model.Template, error) {
	var spec fileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, eris.Wrap(err, "seed: parse YAML")
	}
	if len(spec.Templates) == 0 {
		return nil, eris.New("seed: no templates defined")
	}

	templates := make([]model.Template, 0, len(spec.Templates))
	for _, ts := range spec.Templates {
		if ts.Name == "" {
			return nil, eris.New("seed: template missing name")
		}
		switch ts.Category {
		case model.CategoryVendor, model.CategoryTenant:
		default:
			return nil, eris.Errorf("seed: template %q: invalid category %q", ts.Name, ts.Category)
		}
		switch ts.RiskLevel {
		case model.RiskLow, model.RiskModerate, model.RiskHigh:
		default:
			return nil, eris.Errorf("seed: template %q: invalid risk_level %q", ts.Name, ts.RiskLevel)
		}
		if len(ts.Coverages) == 0 {
			return nil, eris.Errorf("seed: template %q: no coverages", ts.Name)
		}
		for _, req := range ts.Coverages {
			if err := compliance.ValidateRequirement(req); err != nil {
				return nil, eris.Wrapf(err, "seed: template %q", ts.Name)
			}
		}

		templates = append(templates, model.Template{
			Name:      ts.Name,
			Category:  ts.Category,
			RiskLevel: ts.RiskLevel,
			Coverages: ts.Coverages,
		})
	}

	return templates, nil
}

// Apply loads templates into the store. Stores implementing
// TemplateUpserter get a bulk upsert; otherwise templates whose
// (org, name) already exists are skipped. Returns the number of
// templates written.
func Apply(ctx context.Context, st store.Store, templates []model.Template) (int, error) {
	if up, ok := st.(TemplateUpserter); ok {
		n, err := up.UpsertTemplates(ctx, templates)
		if err != nil {
			return 0, err
		}
		zap.L().Info("seed templates upserted",
			zap.String("component", "seed"),
			zap.Int64("rows", n),
		)
		return int(n), nil
	}

	existing, err := st.ListTemplates(ctx, "", "")
	if err != nil {
		return 0, eris.Wrap(err, "seed: list existing templates")
	}
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		if t.IsSystemDefault() {
			seen[t.Name] = true
		}
	}

	written := 0
	for _, t := range templates {
		if seen[t.Name] {
			continue
		}
		if _, err := st.CreateTemplate(ctx, t); err != nil {
			return written, eris.Wrapf(err, "seed: create template %q", t.Name)
		}
		written++
	}

	zap.L().Info("seed templates created",
		zap.String("component", "seed"),
		zap.Int("created", written),
		zap.Int("skipped", len(templates)-written),
	)
	return written, nil
}
