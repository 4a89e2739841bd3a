// Package binref carries the built-in issuer reference data for Egyptian
// card BINs. The dataset ships embedded so lookups work without any external
// service; uploaded watchlist entries extend it at the criteria layer, not
// here.
package binref

import (
	"embed"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
)

//go:embed bins.csv
var binData embed.FS

// BankInfo describes the issuer behind one BIN.
type BankInfo struct {
	BIN      string
	Scheme   string
	CardType string
	Issuer   string
	Country  string
}

// Directory is an immutable BIN to issuer lookup table.
type Directory struct {
	byBIN map[string]BankInfo
}

// Load parses the embedded dataset. Fails only when the embedded file is
// malformed, which points at a broken build rather than bad input.
func Load() (*Directory, error) {
	f, err := binData.Open("bins.csv")
	if err != nil {
		return nil, fmt.Errorf("open embedded bin data: %w", err)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (*Directory, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 5

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read bin data header: %w", err)
	}
	if len(header) != 5 || header[0] != "bin" {
		return nil, fmt.Errorf("unexpected bin data header %v", header)
	}

	byBIN := make(map[string]BankInfo)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read bin data row: %w", err)
		}
		info := BankInfo{
			BIN:      row[0],
			Scheme:   row[1],
			CardType: row[2],
			Issuer:   row[3],
			Country:  row[4],
		}
		byBIN[info.BIN] = info
	}
	return &Directory{byBIN: byBIN}, nil
}

// Lookup returns issuer data for a BIN, or false when unknown.
func (d *Directory) Lookup(bin string) (BankInfo, bool) {
	info, ok := d.byBIN[bin]
	return info, ok
}

// All returns every known BIN sorted by BIN number.
func (d *Directory) All() []BankInfo {
	out := make([]BankInfo, 0, len(d.byBIN))
	for _, info := range d.byBIN {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BIN < out[j].BIN })
	return out
}

// Len reports the number of known BINs.
func (d *Directory) Len() int {
	return len(d.byBIN)
}
