package seed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/unclebandit/campaign-autoresponder/internal/model"
	"github.com/unclebandit/campaign-autoresponder/internal/repository"
)

// File is a campaign seed document. Fields left empty on a campaign are
// taken from Defaults.
type File struct {
	Defaults  Campaign   `yaml:"defaults" toml:"defaults"`
	Campaigns []Campaign `yaml:"campaigns" toml:"campaigns"`
}

type Campaign struct {
	Name           string      `yaml:"name" toml:"name"`
	Title          string      `yaml:"title" toml:"title"`
	ContactEmail   string      `yaml:"contact_email" toml:"contact_email"`
	UnsubscribeMsg string      `yaml:"unsubscribe_msg" toml:"unsubscribe_msg"`
	Responders     []Responder `yaml:"responders" toml:"responders"`
}

type Responder struct {
	Name      string     `yaml:"name" toml:"name"`
	Frequency string     `yaml:"frequency" toml:"frequency"`
	Templates []Template `yaml:"templates" toml:"templates"`
}

type Template struct {
	Name     string   `yaml:"name" toml:"name"`
	Body     string   `yaml:"body" toml:"body"`
	Language string   `yaml:"language" toml:"language"`
	Keywords []string `yaml:"keywords" toml:"keywords"`
	Default  bool     `yaml:"default" toml:"default"`
}

// Load reads a YAML or TOML seed file, chosen by extension.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported seed file extension %q", filepath.Ext(path))
	}

	if err := f.applyDefaults(); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	return &f, nil
}

func (f *File) applyDefaults() error {
	defaults := f.Defaults
	defaults.Name = ""
	for i := range f.Campaigns {
		if err := mergo.Merge(&f.Campaigns[i], defaults); err != nil {
			return fmt.Errorf("failed to apply defaults to campaign %q: %w", f.Campaigns[i].Name, err)
		}
	}
	return nil
}

func (f *File) Validate() error {
	names := map[string]bool{}
	for _, c := range f.Campaigns {
		if c.Name == "" {
			return fmt.Errorf("campaign without a name")
		}
		if strings.ContainsAny(c.Name, "-@") {
			return fmt.Errorf("campaign name %q must not contain '-' or '@'", c.Name)
		}
		if names[c.Name] {
			return fmt.Errorf("duplicate campaign %q", c.Name)
		}
		names[c.Name] = true
		if c.ContactEmail == "" {
			return fmt.Errorf("campaign %q has no contact_email", c.Name)
		}

		responders := map[string]bool{}
		for _, r := range c.Responders {
			if r.Name == "" || r.Frequency == "" {
				return fmt.Errorf("campaign %q: responder needs a name and a frequency", c.Name)
			}
			if responders[r.Name] {
				return fmt.Errorf("campaign %q: duplicate responder %q", c.Name, r.Name)
			}
			responders[r.Name] = true
		}
	}
	return nil
}

// Apply upserts every campaign and its responders in one transaction.
func Apply(ctx context.Context, store repository.Store, f *File, logger *zap.Logger) error {
	return store.WithTx(ctx, func(r repository.Repos) error {
		for _, sc := range f.Campaigns {
			c := &model.Campaign{
				Name:           sc.Name,
				Title:          sc.Title,
				ContactEmail:   sc.ContactEmail,
				UnsubscribeMsg: sc.UnsubscribeMsg,
			}
			if c.Title == "" {
				c.Title = c.Name
			}
			if err := r.Campaigns.UpsertCampaign(ctx, c); err != nil {
				return fmt.Errorf("failed to upsert campaign %q: %w", c.Name, err)
			}

			responders := make([]*model.AutoResponder, 0, len(sc.Responders))
			for _, sr := range sc.Responders {
				ar := &model.AutoResponder{Name: sr.Name, Frequency: model.Frequency(strings.ToLower(sr.Frequency))}
				for i, st := range sr.Templates {
					ar.Templates = append(ar.Templates, &model.Template{
						Name:      st.Name,
						Body:      st.Body,
						Language:  st.Language,
						Keywords:  st.Keywords,
						IsDefault: st.Default,
						Position:  i,
					})
				}
				responders = append(responders, ar)
			}
			if err := r.Campaigns.ReplaceResponders(ctx, c.ID, responders); err != nil {
				return fmt.Errorf("failed to store responders of %q: %w", c.Name, err)
			}

			logger.Info("seeded campaign",
				zap.String("campaign", c.Name),
				zap.Int64("id", c.ID),
				zap.Int("responders", len(responders)))
		}
		return nil
	})
}
