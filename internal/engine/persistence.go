package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/index"
	"github.com/trialmatch/go-match-engine/internal/errors"
	"github.com/trialmatch/go-match-engine/internal/persistence"
	"github.com/trialmatch/go-match-engine/services"
	"github.com/trialmatch/go-match-engine/store"
)

const (
	dataDirPerm         = 0755
	datasetFile         = "dataset.gob"
	patientStoreFile    = "patient_store.gob"
	conditionIndexFile  = "condition_index.gob"
	coordinateIndexFile = "coordinate_index.gob"
)

// persistedDataset is the settings record written next to the store files.
// Stats are persisted so a restart reports the original build, not the
// reload-from-disk time.
type persistedDataset struct {
	Config  config.DatasetConfig
	Scoring config.ScoringConfig
	Stats   services.DatasetStats
}

// loadDatasetsFromDisk restores every dataset persisted under the data
// directory. A dataset that fails to load is skipped with a warning; the
// engine still starts with whatever loaded cleanly.
func (e *Engine) loadDatasetsFromDisk() {
	e.logger.Info("loading datasets from disk", zap.String("data_dir", e.dataDir))

	items, err := os.ReadDir(e.dataDir)
	if err != nil {
		e.logger.Warn("failed to read data directory, no datasets loaded",
			zap.String("data_dir", e.dataDir),
			zap.Error(err),
		)
		return
	}

	for _, item := range items {
		if !item.IsDir() {
			continue
		}
		name := item.Name()
		datasetPath := filepath.Join(e.dataDir, name)

		var persisted persistedDataset
		settingsPath := filepath.Join(datasetPath, datasetFile)
		if err := persistence.LoadGob(settingsPath, &persisted); err != nil {
			e.logger.Warn("failed to load dataset settings, skipping",
				zap.String("dataset", name),
				zap.String("path", settingsPath),
				zap.Error(err),
			)
			continue
		}

		if persisted.Config.Name != name {
			e.logger.Warn("dataset name in settings does not match directory, skipping",
				zap.String("settings_name", persisted.Config.Name),
				zap.String("directory", name),
			)
			continue
		}

		patients := store.NewPatientStore()
		psPath := filepath.Join(datasetPath, patientStoreFile)
		if err := persistence.LoadGob(psPath, patients); err != nil {
			e.logger.Warn("failed to load patient store, skipping dataset",
				zap.String("dataset", name),
				zap.String("path", psPath),
				zap.Error(err),
			)
			continue
		}

		conditions := index.NewConditionIndex()
		ciPath := filepath.Join(datasetPath, conditionIndexFile)
		if err := persistence.LoadGob(ciPath, conditions); err != nil {
			e.logger.Warn("failed to load condition index, skipping dataset",
				zap.String("dataset", name),
				zap.String("path", ciPath),
				zap.Error(err),
			)
			continue
		}

		coordinates := index.NewCoordinateIndex()
		giPath := filepath.Join(datasetPath, coordinateIndexFile)
		if err := persistence.LoadGob(giPath, coordinates); err != nil && err != os.ErrNotExist {
			e.logger.Warn("failed to load coordinate index, proceeding without gazetteer",
				zap.String("dataset", name),
				zap.String("path", giPath),
				zap.Error(err),
			)
			coordinates = index.NewCoordinateIndex()
		}

		instance, err := NewDatasetInstance(persisted.Config, persisted.Scoring, e.taxCfg, e.matchCfg, e.pool, e.logger, e.now)
		if err != nil {
			e.logger.Warn("failed to create instance for loaded dataset, skipping",
				zap.String("dataset", name),
				zap.Error(err),
			)
			continue
		}
		if err := instance.publishLoaded(patients, conditions, coordinates, persisted.Stats); err != nil {
			e.logger.Warn("failed to publish loaded dataset, skipping",
				zap.String("dataset", name),
				zap.Error(err),
			)
			continue
		}

		e.mu.Lock()
		e.datasets[name] = instance
		e.mu.Unlock()

		e.logger.Info("dataset loaded from disk",
			zap.String("dataset", name),
			zap.Int("patients", patients.Len()),
			zap.Int("conditions", conditions.Len()),
		)
	}
}

// persistDataset writes the settings record and all three store files for a
// dataset. Each file goes through the temp-and-rename path, so a crash
// mid-persist leaves the previous files intact.
func (e *Engine) persistDataset(name string, instance *DatasetInstance) error {
	if e.dataDir == "" {
		return nil
	}

	patients, conditions, coordinates, ok := instance.components()
	if !ok {
		return errors.NewDatasetUnavailableError(name, "no snapshot to persist")
	}

	datasetPath := filepath.Join(e.dataDir, name)
	if err := os.MkdirAll(datasetPath, dataDirPerm); err != nil {
		return fmt.Errorf("failed to create directory for dataset %s: %w", name, err)
	}

	persisted := persistedDataset{
		Config:  instance.Config(),
		Scoring: instance.ScoringSettings(),
		Stats:   instance.Stats(),
	}
	if err := persistence.SaveGob(filepath.Join(datasetPath, datasetFile), persisted); err != nil {
		return fmt.Errorf("failed to save settings for dataset %s: %w", name, err)
	}
	if err := persistence.SaveGob(filepath.Join(datasetPath, patientStoreFile), patients); err != nil {
		return fmt.Errorf("failed to save patient store for dataset %s: %w", name, err)
	}
	if err := persistence.SaveGob(filepath.Join(datasetPath, conditionIndexFile), conditions); err != nil {
		return fmt.Errorf("failed to save condition index for dataset %s: %w", name, err)
	}
	if err := persistence.SaveGob(filepath.Join(datasetPath, coordinateIndexFile), coordinates); err != nil {
		return fmt.Errorf("failed to save coordinate index for dataset %s: %w", name, err)
	}
	return nil
}

// PersistDatasetData saves the current snapshot of a dataset to disk.
// This should be called after modifications such as a scoring update.
func (e *Engine) PersistDatasetData(name string) error {
	instance, err := e.instanceFor(name)
	if err != nil {
		return err
	}
	if e.dataDir == "" {
		return fmt.Errorf("cannot persist dataset '%s': no data directory configured", name)
	}
	if err := e.persistDataset(name, instance); err != nil {
		return err
	}
	e.logger.Info("dataset persisted", zap.String("dataset", name))
	return nil
}
