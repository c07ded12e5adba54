package study

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/pkg/codec"
	"github.com/caesium-cloud/sweep/pkg/log"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Init prepares the workspace and the store for the study: it creates
// the stage directories and dynamic tables, records a snapshot of the
// definition and stores a compressed copy of every template. Missing
// templates are reported before anything is written.
func (d *Definition) Init(ctx context.Context, db *gorm.DB) error {
	templates := map[string]map[string][]byte{}
	for i := range d.Stages {
		s := &d.Stages[i]
		if err := d.CheckTemplates(s); err != nil {
			return err
		}
		templates[s.Name] = map[string][]byte{}
		for _, t := range s.Templates {
			blob, err := codec.EncodeFile(filepath.Join(d.TemplateDir(), t), codec.Compress)
			if err != nil {
				return fmt.Errorf("template %s: %w", t, err)
			}
			templates[s.Name][t] = blob
		}
	}

	snapshot, err := json.Marshal(d)
	if err != nil {
		return err
	}

	for i := range d.Stages {
		for _, dir := range []string{d.InputDir(&d.Stages[i]), d.OutputDir(&d.Stages[i])} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := store.New(tx)
		for _, s := range d.ordered() {
			for _, t := range s.Tables() {
				if err := st.CreateTable(ctx, t.Name, t.Schema); err != nil {
					return err
				}
			}
		}

		record := &models.Study{
			Name:       d.Name(),
			Definition: datatypes.JSON(snapshot),
			Settings: datatypes.JSONMap{
				"templates": d.TemplateDir(),
				"input":     d.resolve(d.Paths.Input),
				"output":    d.resolve(d.Paths.Output),
			},
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"definition", "settings", "updated_at"}),
		}).Create(record).Error; err != nil {
			return fmt.Errorf("record study %s: %w", d.Name(), err)
		}

		for stage, files := range templates {
			for name, blob := range files {
				var count int64
				if err := tx.Model(&models.Template{}).
					Where("study = ? AND stage = ? AND name = ?", d.Name(), stage, name).
					Count(&count).Error; err != nil {
					return err
				}
				if count > 0 {
					continue
				}

				if err := tx.Create(&models.Template{
					ID:        uuid.New(),
					Study:     d.Name(),
					Stage:     stage,
					Name:      name,
					Content:   blob,
					CreatedAt: time.Now().UTC(),
				}).Error; err != nil {
					return fmt.Errorf("store template %s: %w", name, err)
				}
				log.Info("stored template", "study", d.Name(), "stage", stage, "template", name)
			}
		}

		return nil
	})
}

// ordered returns the stages with the root first so foreign keys
// resolve on creation.
func (d *Definition) ordered() []*Stage {
	out := make([]*Stage, 0, len(d.Stages))
	if root := d.Root(); root != nil {
		out = append(out, root)
	}
	for i := range d.Stages {
		if d.Stages[i].Parent != "" {
			out = append(out, &d.Stages[i])
		}
	}
	return out
}
