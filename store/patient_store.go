package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/trialmatch/go-match-engine/model"
)

// PatientStore holds the patient roster of one dataset snapshot. Records are
// addressed by their position so posting lists can reference them densely.
// Once the snapshot is published the store is read-only; the mutex guards the
// build phase and gob round-trips.
type PatientStore struct {
	Mu             sync.RWMutex
	Records        []model.PatientRecord
	PatientIDtoPos map[string]uint32 // external patient ID to slice position
}

func NewPatientStore() *PatientStore {
	return &PatientStore{
		Records:        make([]model.PatientRecord, 0),
		PatientIDtoPos: make(map[string]uint32),
	}
}

// Add appends a record and returns its position. A record whose PatientID was
// seen before replaces the earlier one in place, so re-stated roster rows
// follow last-wins semantics.
func (ps *PatientStore) Add(rec model.PatientRecord) uint32 {
	ps.Mu.Lock()
	defer ps.Mu.Unlock()

	if pos, exists := ps.PatientIDtoPos[rec.PatientID]; exists {
		ps.Records[pos] = rec
		return pos
	}
	pos := uint32(len(ps.Records))
	ps.Records = append(ps.Records, rec)
	ps.PatientIDtoPos[rec.PatientID] = pos
	return pos
}

// Get returns the record at a snapshot position.
func (ps *PatientStore) Get(pos uint32) (model.PatientRecord, bool) {
	ps.Mu.RLock()
	defer ps.Mu.RUnlock()
	if int(pos) >= len(ps.Records) {
		return model.PatientRecord{}, false
	}
	return ps.Records[pos], true
}

// GetByID returns the record carrying the external patient ID.
func (ps *PatientStore) GetByID(patientID string) (model.PatientRecord, bool) {
	ps.Mu.RLock()
	defer ps.Mu.RUnlock()
	pos, ok := ps.PatientIDtoPos[patientID]
	if !ok {
		return model.PatientRecord{}, false
	}
	return ps.Records[pos], true
}

// Len returns the number of distinct patients in the store.
func (ps *PatientStore) Len() int {
	ps.Mu.RLock()
	defer ps.Mu.RUnlock()
	return len(ps.Records)
}

// gobPatientStoreData is a helper struct for gob encoding/decoding
// PatientStore data. It excludes the mutex.
type gobPatientStoreData struct {
	Records        []model.PatientRecord
	PatientIDtoPos map[string]uint32
}

// GobEncode implements the gob.GobEncoder interface for PatientStore.
func (ps *PatientStore) GobEncode() ([]byte, error) {
	ps.Mu.RLock()
	defer ps.Mu.RUnlock()

	dataToEncode := gobPatientStoreData{
		Records:        ps.Records,
		PatientIDtoPos: ps.PatientIDtoPos,
	}

	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)
	if err := encoder.Encode(dataToEncode); err != nil {
		return nil, fmt.Errorf("failed to gob encode patient store data: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface for PatientStore.
func (ps *PatientStore) GobDecode(data []byte) error {
	decodedData := gobPatientStoreData{}

	buf := bytes.NewBuffer(data)
	decoder := gob.NewDecoder(buf)
	if err := decoder.Decode(&decodedData); err != nil {
		return fmt.Errorf("failed to gob decode patient store data: %w", err)
	}

	ps.Mu.Lock()
	defer ps.Mu.Unlock()

	ps.Records = decodedData.Records
	ps.PatientIDtoPos = decodedData.PatientIDtoPos

	// Ensure containers are initialized after decoding an empty payload.
	if ps.Records == nil {
		ps.Records = make([]model.PatientRecord, 0)
	}
	if ps.PatientIDtoPos == nil {
		ps.PatientIDtoPos = make(map[string]uint32)
	}
	return nil
}
