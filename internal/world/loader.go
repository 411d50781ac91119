package world

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrMissingColumn is returned when the header lacks a required column.
	ErrMissingColumn = errors.New("missing column")

	// ErrInvalidValue is returned for a non-finite coordinate or area, or a
	// negative area.
	ErrInvalidValue = errors.New("invalid value")
)

// columnAliases maps every accepted header name to its field. The Czech
// names come from the municipal statistics export the simulation was built
// around.
var columnAliases = map[string]string{
	"kod_obce":         "city_id",
	"city_id":          "city_id",
	"pocet_obyvatel":   "population",
	"population":       "population",
	"pocet_nakazenych": "infected",
	"infected":         "infected",
	"latitude":         "latitude",
	"lat":              "latitude",
	"longitude":        "longitude",
	"lon":              "longitude",
	"vymera":           "area",
	"area":             "area",
}

var requiredColumns = []string{"city_id", "population", "infected", "latitude", "longitude", "area"}

// LoadCityFile reads city records from a CSV file.
func LoadCityFile(path string) ([]CityRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cities: %w", err)
	}
	defer f.Close()
	return LoadCityRecords(f)
}

// LoadCityRecords parses a CSV population table. Column order is free; the
// header is matched case-insensitively against known names.
func LoadCityRecords(r io.Reader) ([]CityRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(requiredColumns))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if field, ok := columnAliases[name]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	for _, field := range requiredColumns {
		if _, ok := cols[field]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, field)
		}
	}

	var records []CityRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		rec, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, ErrNoCities
	}
	return records, nil
}

func parseRow(row []string, cols map[string]int) (CityRecord, error) {
	field := func(name string) (string, error) {
		i := cols[name]
		if i >= len(row) {
			return "", fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		return strings.TrimSpace(row[i]), nil
	}
	intField := func(name string) (int, error) {
		s, err := field(name)
		if err != nil {
			return 0, err
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil
	}
	floatField := func(name string) (float64, error) {
		s, err := field(name)
		if err != nil {
			return 0, err
		}
		// Czech exports use a decimal comma.
		v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %s %q", ErrInvalidValue, name, s)
		}
		return v, nil
	}

	var rec CityRecord
	var err error
	code, err := intField("city_id")
	if err != nil {
		return rec, err
	}
	rec.Code = int32(code)
	if rec.Population, err = intField("population"); err != nil {
		return rec, err
	}
	if rec.Infected, err = intField("infected"); err != nil {
		return rec, err
	}
	if rec.Lat, err = floatField("latitude"); err != nil {
		return rec, err
	}
	if rec.Lon, err = floatField("longitude"); err != nil {
		return rec, err
	}
	if rec.Area, err = floatField("area"); err != nil {
		return rec, err
	}
	if rec.Area < 0 {
		return rec, fmt.Errorf("%w: city %d area %g", ErrInvalidValue, rec.Code, rec.Area)
	}
	if rec.Population < 0 || rec.Infected < 0 || rec.Infected > rec.Population {
		return rec, fmt.Errorf("city %d: infected %d of population %d", rec.Code, rec.Infected, rec.Population)
	}
	return rec, nil
}
