package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/paulmach/orb/geojson"
)

var ErrDataLayerNotFound = errors.New("data layer has no vector data")

var dataLayerID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DataLayerService serves the vector data of data layers stored as
// <data-dir>/datalayers/<id>.geojson.
type DataLayerService struct {
	dir string
}

// NewDataLayerService creates a new data layer service.
func NewDataLayerService(dataDir string) *DataLayerService {
	return &DataLayerService{dir: filepath.Join(dataDir, "datalayers")}
}

// Dir returns the path to the data layers directory.
func (s *DataLayerService) Dir() string {
	return s.dir
}

// List returns all data layers that have vector data.
func (s *DataLayerService) List() ([]DataLayerFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []DataLayerFile{}, nil
		}
		return nil, err
	}

	files := []DataLayerFile{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".geojson" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, DataLayerFile{
			ID:   strings.TrimSuffix(entry.Name(), ".geojson"),
			Size: formatSize(info.Size()),
		})
	}
	return files, nil
}

// Vector returns the vector data of the data layer id.
func (s *DataLayerService) Vector(id string) (*geojson.FeatureCollection, error) {
	if !dataLayerID.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrDataLayerNotFound, id)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id+".geojson"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrDataLayerNotFound, id)
		}
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing data layer %s: %w", id, err)
	}
	return fc, nil
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
