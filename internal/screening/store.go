package screening

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/trialmatch/go-match-engine/model"
)

// RuleSetStore is the persistence interface for screening funnels.
type RuleSetStore interface {
	GetRuleSet(name string) (model.ScreeningRuleSet, error)
	CreateRuleSet(rs model.ScreeningRuleSet) (model.ScreeningRuleSet, error)
	UpdateRuleSet(rs model.ScreeningRuleSet) error
	DeleteRuleSet(name string) error
	ListRuleSets() []model.ScreeningRuleSet
}

// MemoryRuleSetStore is an in-memory implementation of RuleSetStore.
type MemoryRuleSetStore struct {
	mutex    sync.RWMutex
	ruleSets map[string]model.ScreeningRuleSet
}

// NewMemoryRuleSetStore creates an empty in-memory rule set store.
func NewMemoryRuleSetStore() *MemoryRuleSetStore {
	return &MemoryRuleSetStore{
		ruleSets: make(map[string]model.ScreeningRuleSet),
	}
}

func (s *MemoryRuleSetStore) GetRuleSet(name string) (model.ScreeningRuleSet, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rs, exists := s.ruleSets[name]
	if !exists {
		return model.ScreeningRuleSet{}, fmt.Errorf("screening rule set '%s' not found", name)
	}
	return rs, nil
}

func (s *MemoryRuleSetStore) CreateRuleSet(rs model.ScreeningRuleSet) (model.ScreeningRuleSet, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := validateRuleSet(rs); err != nil {
		return model.ScreeningRuleSet{}, fmt.Errorf("invalid screening rule set: %w", err)
	}
	if _, exists := s.ruleSets[rs.Name]; exists {
		return model.ScreeningRuleSet{}, fmt.Errorf("screening rule set '%s' already exists", rs.Name)
	}

	rs.UpdatedAt = time.Now()
	s.ruleSets[rs.Name] = rs
	return rs, nil
}

func (s *MemoryRuleSetStore) UpdateRuleSet(rs model.ScreeningRuleSet) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := validateRuleSet(rs); err != nil {
		return fmt.Errorf("invalid screening rule set: %w", err)
	}
	if _, exists := s.ruleSets[rs.Name]; !exists {
		return fmt.Errorf("screening rule set '%s' not found", rs.Name)
	}

	rs.UpdatedAt = time.Now()
	s.ruleSets[rs.Name] = rs
	return nil
}

func (s *MemoryRuleSetStore) DeleteRuleSet(name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.ruleSets[name]; !exists {
		return fmt.Errorf("screening rule set '%s' not found", name)
	}
	delete(s.ruleSets, name)
	return nil
}

func (s *MemoryRuleSetStore) ListRuleSets() []model.ScreeningRuleSet {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]model.ScreeningRuleSet, 0, len(s.ruleSets))
	for _, rs := range s.ruleSets {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FileRuleSetStore is a file-backed implementation of RuleSetStore. Every
// mutation is written through to a JSON file; a failed write rolls the
// in-memory state back.
type FileRuleSetStore struct {
	mutex        sync.RWMutex
	ruleSets     map[string]model.ScreeningRuleSet
	dataFilePath string
}

// NewFileRuleSetStore creates a rule set store persisted under dataDir. An
// absent data file is not an error, it is created on the first write.
func NewFileRuleSetStore(dataDir string) (*FileRuleSetStore, error) {
	store := &FileRuleSetStore{
		ruleSets:     make(map[string]model.ScreeningRuleSet),
		dataFilePath: filepath.Join(dataDir, "screening_rules.json"),
	}
	if err := store.loadData(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load screening rule sets: %w", err)
	}
	return store, nil
}

func (s *FileRuleSetStore) GetRuleSet(name string) (model.ScreeningRuleSet, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rs, exists := s.ruleSets[name]
	if !exists {
		return model.ScreeningRuleSet{}, fmt.Errorf("screening rule set '%s' not found", name)
	}
	return rs, nil
}

func (s *FileRuleSetStore) CreateRuleSet(rs model.ScreeningRuleSet) (model.ScreeningRuleSet, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := validateRuleSet(rs); err != nil {
		return model.ScreeningRuleSet{}, fmt.Errorf("invalid screening rule set: %w", err)
	}
	if _, exists := s.ruleSets[rs.Name]; exists {
		return model.ScreeningRuleSet{}, fmt.Errorf("screening rule set '%s' already exists", rs.Name)
	}

	rs.UpdatedAt = time.Now()
	s.ruleSets[rs.Name] = rs
	if err := s.saveData(); err != nil {
		delete(s.ruleSets, rs.Name)
		return model.ScreeningRuleSet{}, fmt.Errorf("failed to persist screening rule set: %w", err)
	}
	return rs, nil
}

func (s *FileRuleSetStore) UpdateRuleSet(rs model.ScreeningRuleSet) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := validateRuleSet(rs); err != nil {
		return fmt.Errorf("invalid screening rule set: %w", err)
	}
	old, exists := s.ruleSets[rs.Name]
	if !exists {
		return fmt.Errorf("screening rule set '%s' not found", rs.Name)
	}

	rs.UpdatedAt = time.Now()
	s.ruleSets[rs.Name] = rs
	if err := s.saveData(); err != nil {
		s.ruleSets[rs.Name] = old
		return fmt.Errorf("failed to persist screening rule set update: %w", err)
	}
	return nil
}

func (s *FileRuleSetStore) DeleteRuleSet(name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	old, exists := s.ruleSets[name]
	if !exists {
		return fmt.Errorf("screening rule set '%s' not found", name)
	}

	delete(s.ruleSets, name)
	if err := s.saveData(); err != nil {
		s.ruleSets[name] = old
		return fmt.Errorf("failed to persist screening rule set deletion: %w", err)
	}
	return nil
}

func (s *FileRuleSetStore) ListRuleSets() []model.ScreeningRuleSet {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]model.ScreeningRuleSet, 0, len(s.ruleSets))
	for _, rs := range s.ruleSets {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *FileRuleSetStore) loadData() error {
	data, err := os.ReadFile(s.dataFilePath)
	if err != nil {
		return err
	}

	var ruleSets []model.ScreeningRuleSet
	if err := json.Unmarshal(data, &ruleSets); err != nil {
		return fmt.Errorf("failed to parse screening rule sets: %w", err)
	}
	s.ruleSets = make(map[string]model.ScreeningRuleSet, len(ruleSets))
	for _, rs := range ruleSets {
		s.ruleSets[rs.Name] = rs
	}
	return nil
}

func (s *FileRuleSetStore) saveData() error {
	ruleSets := make([]model.ScreeningRuleSet, 0, len(s.ruleSets))
	for _, rs := range s.ruleSets {
		ruleSets = append(ruleSets, rs)
	}
	sort.Slice(ruleSets, func(i, j int) bool { return ruleSets[i].Name < ruleSets[j].Name })

	data, err := json.MarshalIndent(ruleSets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal screening rule sets: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.dataFilePath), 0750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(s.dataFilePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write screening rule sets: %w", err)
	}
	return nil
}

// validateRuleSet checks a funnel for structural problems: it needs a name,
// at least one stage, distinct stage labels, and known statuses.
func validateRuleSet(rs model.ScreeningRuleSet) error {
	if rs.Name == "" {
		return fmt.Errorf("rule set name cannot be empty")
	}
	if len(rs.Stages) == 0 {
		return fmt.Errorf("rule set must have at least one stage")
	}

	seen := make(map[string]bool, len(rs.Stages))
	for i, stage := range rs.Stages {
		label := normalizeStage(stage.Stage)
		if label == "" {
			return fmt.Errorf("stage %d: label cannot be empty", i)
		}
		if seen[label] {
			return fmt.Errorf("stage %d: duplicate label '%s'", i, stage.Stage)
		}
		seen[label] = true

		switch stage.Status {
		case model.ScreeningNone, model.ScreeningRespondent, model.ScreeningQualified, model.ScreeningReleased:
		default:
			return fmt.Errorf("stage %d: unknown screening status '%s'", i, stage.Status)
		}
	}
	return nil
}
