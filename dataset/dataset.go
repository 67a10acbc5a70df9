// Package dataset reads and writes the JSON interchange record used to pass
// spectral features, labels and groups between the feature pipeline and the
// models. Features are stored condensed: one row per sample holding the
// lower triangle of every frequency's region-by-region matrix.
package dataset

import (
	"encoding/json"
	"io"
	"math/rand"
	"os"

	"github.com/juju/errors"

	"github.com/tsawler/go-lpne/model"
	"github.com/tsawler/go-lpne/tensor"
	"github.com/tsawler/go-lpne/triangular"
)

// Record is the on-disk form of a dataset.
type Record struct {
	NFreqs   int         `json:"n_freqs"`
	NRois    int         `json:"n_rois"`
	Features [][]float64 `json:"features"` // [n][n_freqs * n_rois(n_rois+1)/2]
	Labels   []int       `json:"labels"`
	Groups   []int       `json:"groups"`
}

// ToDataset expands the condensed features into [n, f, r, r].
func (r *Record) ToDataset() (*model.Dataset, error) {
	n := len(r.Features)
	if n == 0 {
		return nil, errors.NotValidf("dataset without samples")
	}
	if r.NFreqs < 1 || r.NRois < 1 {
		return nil, errors.NotValidf("dataset dimensions n_freqs=%d n_rois=%d", r.NFreqs, r.NRois)
	}
	pairs := triangular.Size(r.NRois)
	width := r.NFreqs * pairs
	data := make([]float64, 0, n*width)
	for i, row := range r.Features {
		if len(row) != width {
			return nil, errors.NotValidf("sample %d has %d values, expected %d", i, len(row), width)
		}
		data = append(data, row...)
	}
	condensed, err := tensor.NewTensor([]int{n, r.NFreqs, pairs}, data)
	if err != nil {
		return nil, errors.Trace(err)
	}
	features, err := triangular.Expand(condensed, 2)
	if err != nil {
		return nil, errors.Trace(err)
	}

	groups := r.Groups
	if groups == nil {
		groups = make([]int, n)
	}
	ds := &model.Dataset{Features: features, Labels: r.Labels, Groups: groups}
	return ds, errors.Trace(ds.Validate())
}

// FromDataset condenses the symmetric region axes of ds.
func FromDataset(ds *model.Dataset) (*Record, error) {
	if err := ds.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	condensed, err := triangular.Compress(ds.Features, 2, 3)
	if err != nil {
		return nil, errors.Trace(err)
	}
	nFreqs, nRois := ds.Dims()
	n := ds.Len()
	width := condensed.NumElems / n
	record := &Record{
		NFreqs:   nFreqs,
		NRois:    nRois,
		Features: make([][]float64, n),
		Labels:   append([]int(nil), ds.Labels...),
		Groups:   append([]int(nil), ds.Groups...),
	}
	for i := range record.Features {
		record.Features[i] = append([]float64(nil), condensed.Data[i*width:(i+1)*width]...)
	}
	return record, nil
}

// Read decodes a JSON record from r.
func Read(r io.Reader) (*model.Dataset, error) {
	var record Record
	if err := json.NewDecoder(r).Decode(&record); err != nil {
		return nil, errors.Annotate(err, "decode dataset")
	}
	return record.ToDataset()
}

// Write encodes ds as a JSON record.
func Write(ds *model.Dataset, w io.Writer) error {
	record, err := FromDataset(ds)
	if err != nil {
		return err
	}
	return errors.Annotate(json.NewEncoder(w).Encode(record), "encode dataset")
}

// Load reads a dataset file.
func Load(path string) (*model.Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	return Read(file)
}

// Save writes a dataset file.
func Save(ds *model.Dataset, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	if err := Write(ds, file); err != nil {
		file.Close()
		return err
	}
	return errors.Trace(file.Close())
}

// TrainTestSplit shuffles ds and holds out round(testFrac*n) samples.
func TrainTestSplit(ds *model.Dataset, testFrac float64, rng *rand.Rand) (train, test *model.Dataset, err error) {
	if err := ds.Validate(); err != nil {
		return nil, nil, errors.Trace(err)
	}
	n := ds.Len()
	nTest := int(testFrac*float64(n) + 0.5)
	if testFrac <= 0 || testFrac >= 1 || nTest < 1 || nTest >= n {
		return nil, nil, errors.NotValidf("test fraction %v of %d samples", testFrac, n)
	}
	perm := rng.Perm(n)
	if test, err = ds.Subset(perm[:nTest]); err != nil {
		return nil, nil, errors.Trace(err)
	}
	if train, err = ds.Subset(perm[nTest:]); err != nil {
		return nil, nil, errors.Trace(err)
	}
	return train, test, nil
}
