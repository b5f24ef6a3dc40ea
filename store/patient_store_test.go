package store

import (
	"bytes"
	"encoding/gob"
	"testing"
	"time"

	"github.com/trialmatch/go-match-engine/model"
)

func intp(v int) *int { return &v }

func TestPatientStoreAddLastWins(t *testing.T) {
	ps := NewPatientStore()

	posA := ps.Add(model.PatientRecord{PatientID: "P-001", Age: intp(31), Indication: "ADHD"})
	posB := ps.Add(model.PatientRecord{PatientID: "P-002", Age: intp(45), Indication: "Migraine"})
	posA2 := ps.Add(model.PatientRecord{PatientID: "P-001", Age: intp(32), Indication: "ADHD"})

	if posA != posA2 {
		t.Errorf("re-stated patient moved from position %d to %d, want in-place replace", posA, posA2)
	}
	if got := ps.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	rec, ok := ps.GetByID("P-001")
	if !ok || rec.Age == nil || *rec.Age != 32 {
		t.Errorf("GetByID(P-001) = %+v ok=%v, want the later row (age 32)", rec, ok)
	}
	if rec, ok := ps.Get(posB); !ok || rec.PatientID != "P-002" {
		t.Errorf("Get(%d) = %+v ok=%v, want P-002", posB, rec, ok)
	}
	if _, ok := ps.Get(99); ok {
		t.Error("Get past the end should report ok=false")
	}
	if _, ok := ps.GetByID("P-404"); ok {
		t.Error("unknown patient ID should report ok=false")
	}
}

func TestPatientStoreGobRoundTrip(t *testing.T) {
	ps := NewPatientStore()
	diagnosed := time.Date(2024, 11, 3, 0, 0, 0, 0, time.UTC)
	ps.Add(model.PatientRecord{
		PatientID:     "P-010",
		Age:           intp(58),
		Sex:           model.SexFemale,
		Indication:    "Type 2 Diabetes",
		StudyID:       "STU-204",
		PostalCode:    "19104",
		DiagnosisDate: &diagnosed,
	})
	ps.Add(model.PatientRecord{PatientID: "P-011", Age: intp(27), Sex: model.SexMale, Indication: "Asthma"})

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ps); err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded := &PatientStore{}
	if err := gob.NewDecoder(bytes.NewReader(buf.Bytes())).Decode(decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if got := decoded.Len(); got != 2 {
		t.Fatalf("Len() after round trip = %d, want 2", got)
	}
	rec, ok := decoded.GetByID("P-010")
	if !ok {
		t.Fatal("P-010 missing after round trip")
	}
	if rec.DiagnosisDate == nil || !rec.DiagnosisDate.Equal(diagnosed) {
		t.Errorf("diagnosis date after round trip = %v, want %v", rec.DiagnosisDate, diagnosed)
	}
	if rec.Indication != "Type 2 Diabetes" || rec.PostalCode != "19104" {
		t.Errorf("record fields lost in round trip: %+v", rec)
	}
}
