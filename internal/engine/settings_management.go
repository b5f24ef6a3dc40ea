package engine

import (
	"strings"

	"go.uber.org/zap"

	"github.com/trialmatch/go-match-engine/config"
	"github.com/trialmatch/go-match-engine/internal/errors"
)

// GetScoringSettings retrieves the scoring breakpoints for a dataset.
func (e *Engine) GetScoringSettings(name string) (config.ScoringConfig, error) {
	instance, err := e.instanceFor(name)
	if err != nil {
		return config.ScoringConfig{}, err
	}
	return instance.ScoringSettings(), nil
}

// UpdateScoringSettings validates and applies new scoring breakpoints to a
// dataset, rebuilds its scorer over the unchanged snapshot, and persists the
// settings. Totals from queries issued before and after the update are not
// comparable; the normalization ceiling travels with the settings.
func (e *Engine) UpdateScoringSettings(name string, scoring config.ScoringConfig) error {
	instance, err := e.instanceFor(name)
	if err != nil {
		return err
	}

	scoring.ApplyDefaults()
	if conflicts := scoring.Validate(); len(conflicts) > 0 {
		return errors.NewValidationError("scoring", strings.Join(conflicts, "; "))
	}

	if err := instance.UpdateScoring(scoring); err != nil {
		return err
	}

	if e.dataDir != "" {
		if err := e.persistDataset(name, instance); err != nil {
			e.logger.Warn("scoring updated but persistence failed",
				zap.String("dataset", name),
				zap.Error(err),
			)
		}
	}

	e.logger.Info("scoring settings updated",
		zap.String("dataset", name),
		zap.Float64("max_achievable_score", scoring.MaxAchievableScore),
	)
	return nil
}
