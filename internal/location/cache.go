package location

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/fall-guard/internal/domain/fall"
)

// NetworkProviderName is the name of the cached network-derived provider.
const NetworkProviderName = "network"

// cachedFix is the on-disk shape of a last-known fix. JSON files parse too.
type cachedFix struct {
	// Latitude in decimal degrees.
	Latitude *float64 `yaml:"latitude"`
	// Longitude in decimal degrees.
	Longitude *float64 `yaml:"longitude"`
	// Accuracy in meters.
	Accuracy float64 `yaml:"accuracy"`
	// Time of the fix in RFC 3339.
	Time string `yaml:"time"`
}

// CacheFileProvider reads the last fix written by an external network locator.
type CacheFileProvider struct {
	// path of the cache file.
	path string
}

// NewCacheFileProvider creates a provider for the file at path.
func NewCacheFileProvider(path string) *CacheFileProvider {
	return &CacheFileProvider{
		path: filepath.Clean(path),
	}
}

// Name implements Provider.
func (p *CacheFileProvider) Name() string {
	return NetworkProviderName
}

// Enabled reports whether a cache file exists.
func (p *CacheFileProvider) Enabled(context.Context) bool {
	if p.path == "" || p.path == "." {
		return false
	}

	_, err := os.Stat(p.path)

	return err == nil
}

// LastKnown implements Provider.
func (p *CacheFileProvider) LastKnown(context.Context) (*fall.Location, error) {
	contents, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read location cache: %w", err)
	}

	var fix cachedFix
	if err = yaml.Unmarshal(contents, &fix); err != nil {
		return nil, fmt.Errorf("decode location cache: %w", err)
	}

	if fix.Latitude == nil || fix.Longitude == nil {
		return nil, nil
	}

	loc := &fall.Location{
		Latitude:  *fix.Latitude,
		Longitude: *fix.Longitude,
		Accuracy:  fix.Accuracy,
		Provider:  NetworkProviderName,
	}

	if fix.Time != "" {
		if loc.Time, err = time.Parse(time.RFC3339, fix.Time); err != nil {
			return nil, fmt.Errorf("decode location cache time: %w", err)
		}
	}

	return loc, nil
}
