package index

import (
	"bytes"
	"encoding/gob"
	"math"
	"strings"
	"sync"
)

const earthRadiusKm = 6371.0

// Coordinate is a geographic point resolved from a postal code.
type Coordinate struct {
	Lat float64
	Lon float64
}

// CoordinateIndex maps a normalized postal code to its coordinate. It is
// built from the gazetteer during ingestion and read-only afterwards.
type CoordinateIndex struct {
	Mu     sync.RWMutex
	Coords map[string]Coordinate
}

func NewCoordinateIndex() *CoordinateIndex {
	return &CoordinateIndex{Coords: make(map[string]Coordinate)}
}

// NormalizeZip canonicalizes a postal code for lookup: surrounding whitespace
// is dropped, letters are upper-cased, and a ZIP+4 form collapses to its
// five-digit prefix.
func NormalizeZip(zip string) string {
	zip = strings.ToUpper(strings.TrimSpace(zip))
	if i := strings.IndexByte(zip, '-'); i == 5 && len(zip) > 5 {
		zip = zip[:5]
	}
	return zip
}

// Add records the coordinate for a postal code. Blank codes are ignored.
func (gi *CoordinateIndex) Add(zip string, lat, lon float64) {
	key := NormalizeZip(zip)
	if key == "" {
		return
	}
	gi.Mu.Lock()
	defer gi.Mu.Unlock()
	gi.Coords[key] = Coordinate{Lat: lat, Lon: lon}
}

// Lookup resolves a postal code to its coordinate.
func (gi *CoordinateIndex) Lookup(zip string) (Coordinate, bool) {
	key := NormalizeZip(zip)
	gi.Mu.RLock()
	defer gi.Mu.RUnlock()
	coord, ok := gi.Coords[key]
	return coord, ok
}

// DistanceKm returns the great-circle distance between two postal codes. The
// second return is false when either code is missing from the gazetteer.
func (gi *CoordinateIndex) DistanceKm(zipA, zipB string) (float64, bool) {
	a, okA := gi.Lookup(zipA)
	b, okB := gi.Lookup(zipB)
	if !okA || !okB {
		return 0, false
	}
	return Haversine(a, b), true
}

// MinDistanceKm returns the smallest distance between the patient's postal
// code and any of the site postal codes. It reports false when the patient's
// code is unresolved or no site code resolves.
func (gi *CoordinateIndex) MinDistanceKm(patientZip string, siteZips []string) (float64, bool) {
	patient, ok := gi.Lookup(patientZip)
	if !ok {
		return 0, false
	}
	best := math.MaxFloat64
	found := false
	for _, siteZip := range siteZips {
		site, ok := gi.Lookup(siteZip)
		if !ok {
			continue
		}
		if d := Haversine(patient, site); d < best {
			best = d
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return best, true
}

// Len returns the number of postal codes in the index.
func (gi *CoordinateIndex) Len() int {
	gi.Mu.RLock()
	defer gi.Mu.RUnlock()
	return len(gi.Coords)
}

// Haversine computes the great-circle distance in kilometers between two
// coordinates using a mean Earth radius of 6371 km.
func Haversine(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// gobCoordinateIndexData is a helper struct for gob encoding/decoding
// CoordinateIndex data. It excludes the mutex.
type gobCoordinateIndexData struct {
	Coords map[string]Coordinate
}

// GobEncode implements the gob.GobEncoder interface for CoordinateIndex.
func (gi *CoordinateIndex) GobEncode() ([]byte, error) {
	gi.Mu.RLock()
	defer gi.Mu.RUnlock()

	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)
	if err := encoder.Encode(gobCoordinateIndexData{Coords: gi.Coords}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface for CoordinateIndex.
func (gi *CoordinateIndex) GobDecode(data []byte) error {
	decodedData := gobCoordinateIndexData{}

	buf := bytes.NewBuffer(data)
	decoder := gob.NewDecoder(buf)
	if err := decoder.Decode(&decodedData); err != nil {
		return err
	}

	gi.Mu.Lock()
	defer gi.Mu.Unlock()

	gi.Coords = decodedData.Coords
	if gi.Coords == nil {
		gi.Coords = make(map[string]Coordinate)
	}
	return nil
}
