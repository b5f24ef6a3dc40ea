package index

import (
	"bytes"
	"encoding/gob"
	"sort"
	"sync"

	"github.com/trialmatch/go-match-engine/internal/taxonomy"
)

// ConditionIndex maps a normalized indication to the posting list of patient
// positions recorded under it. Once a dataset snapshot is published the index
// is read-only; the mutex guards the build phase and gob round-trips.
type ConditionIndex struct {
	Mu       sync.RWMutex
	Postings map[string]PostingList
	Display  map[string]string // normalized key -> spelling as first seen in the roster
}

func NewConditionIndex() *ConditionIndex {
	return &ConditionIndex{
		Postings: make(map[string]PostingList),
		Display:  make(map[string]string),
	}
}

// Add records that the patient at the given snapshot position carries the
// indication. Blank indications are ignored.
func (ci *ConditionIndex) Add(indication string, pos uint32) {
	key := taxonomy.Normalize(indication)
	if key == "" {
		return
	}
	ci.Mu.Lock()
	defer ci.Mu.Unlock()
	ci.Postings[key] = ci.Postings[key].Add(pos)
	if _, seen := ci.Display[key]; !seen {
		ci.Display[key] = indication
	}
}

// Lookup returns the posting list for an indication, normalizing the input the
// same way Add does. The returned slice must not be mutated.
func (ci *ConditionIndex) Lookup(indication string) PostingList {
	key := taxonomy.Normalize(indication)
	ci.Mu.RLock()
	defer ci.Mu.RUnlock()
	return ci.Postings[key]
}

// Terms returns the sorted normalized vocabulary of the index. The filter
// stage fuzzy-matches the query target against this list instead of scanning
// every patient row.
func (ci *ConditionIndex) Terms() []string {
	ci.Mu.RLock()
	defer ci.Mu.RUnlock()
	terms := make([]string, 0, len(ci.Postings))
	for key := range ci.Postings {
		terms = append(terms, key)
	}
	sort.Strings(terms)
	return terms
}

// DisplayName returns the roster spelling for a normalized term, falling back
// to the term itself when the index has never seen it.
func (ci *ConditionIndex) DisplayName(term string) string {
	ci.Mu.RLock()
	defer ci.Mu.RUnlock()
	if display, ok := ci.Display[term]; ok {
		return display
	}
	return term
}

// Len returns the number of distinct indications in the index.
func (ci *ConditionIndex) Len() int {
	ci.Mu.RLock()
	defer ci.Mu.RUnlock()
	return len(ci.Postings)
}

// gobConditionIndexData is a helper struct for gob encoding/decoding
// ConditionIndex data. It excludes the mutex.
type gobConditionIndexData struct {
	Postings map[string]PostingList
	Display  map[string]string
}

// GobEncode implements the gob.GobEncoder interface for ConditionIndex.
func (ci *ConditionIndex) GobEncode() ([]byte, error) {
	ci.Mu.RLock()
	defer ci.Mu.RUnlock()

	dataToEncode := gobConditionIndexData{
		Postings: ci.Postings,
		Display:  ci.Display,
	}

	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)
	if err := encoder.Encode(dataToEncode); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface for ConditionIndex.
func (ci *ConditionIndex) GobDecode(data []byte) error {
	decodedData := gobConditionIndexData{}

	buf := bytes.NewBuffer(data)
	decoder := gob.NewDecoder(buf)
	if err := decoder.Decode(&decodedData); err != nil {
		return err
	}

	ci.Mu.Lock()
	defer ci.Mu.Unlock()

	ci.Postings = decodedData.Postings
	ci.Display = decodedData.Display

	// Maps can come back nil after decoding an empty payload.
	if ci.Postings == nil {
		ci.Postings = make(map[string]PostingList)
	}
	if ci.Display == nil {
		ci.Display = make(map[string]string)
	}
	return nil
}
