// Package profilestore is the immutable, in-memory catalog of vendor
// profiles the Profile Matcher scores devices against. Profiles are loaded
// from external JSON files at startup; the store itself never mutates after
// LoadBuiltin or LoadDir returns, so it is safe to share across goroutines
// without locking.
package profilestore

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

//go:embed profiles/*.json
var builtinProfiles embed.FS

// fileEndpoint mirrors one protocol block in the external profile file
// format of spec.md §6: a port plus arbitrary {PLACEHOLDER}-templated
// strings under "extra".
type fileEndpoint struct {
	Port  int               `json:"port,omitempty"`
	Extra map[string]string `json:"extra,omitempty"`
}

// fileProfile is the on-disk JSON shape of one DeviceProfile record.
type fileProfile struct {
	Name  string `json:"name"`
	Match struct {
		Manufacturer []string `json:"manufacturer"`
		ModelName    []string `json:"modelName"`
		DeviceType   []string `json:"deviceType"`
		ServerHeader []string `json:"server_header"`
	} `json:"match"`
	UPnP map[string]struct {
		ServiceType string `json:"serviceType"`
		ControlURL  string `json:"controlURL"`
	} `json:"upnp,omitempty"`
	ECP        *fileEndpoint `json:"ecp,omitempty"`
	WAM        *fileEndpoint `json:"wam,omitempty"`
	Cast       *fileEndpoint `json:"cast,omitempty"`
	HEOS       *fileEndpoint `json:"heos,omitempty"`
	MusicCast  *fileEndpoint `json:"musiccast,omitempty"`
	JSONRPC    *fileEndpoint `json:"jsonrpc,omitempty"`
	SoundTouch *fileEndpoint `json:"soundtouch,omitempty"`
	Notes      string        `json:"notes,omitempty"`
}

// genericFallbackName is the designated fallback profile's name, matched by
// the Profile Matcher when nothing else scores above zero.
const genericFallbackName = "Generic MediaRenderer"

// Store is the immutable catalog of loaded profiles.
type Store struct {
	profiles []*upnpmodel.DeviceProfile
}

// Profiles returns every loaded profile, including the generic fallback.
func (s *Store) Profiles() []*upnpmodel.DeviceProfile {
	return s.profiles
}

// Len reports how many profiles (including the fallback) are loaded.
func (s *Store) Len() int {
	return len(s.profiles)
}

// LoadBuiltin loads the profiles embedded in the binary plus the generic
// fallback profile. This is the toolkit's zero-configuration default.
func LoadBuiltin(logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := &Store{}

	entries, err := fs.ReadDir(builtinProfiles, "profiles")
	if err != nil {
		return nil, fmt.Errorf("reading embedded profiles: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := builtinProfiles.ReadFile(filepath.Join("profiles", entry.Name()))
		if err != nil {
			logger.Warn("reading embedded profile", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		profile, err := parseProfile(data)
		if err != nil {
			logger.Warn("parsing embedded profile", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		store.profiles = append(store.profiles, profile)
	}

	store.profiles = append(store.profiles, genericFallback())
	return store, nil
}

// LoadDir loads every *.json file in dir as a profile record, in addition
// to the built-in set, merging built-in and user profile directories. A
// missing directory is not an error: it simply contributes no additional
// profiles.
func LoadDir(dir string, logger *zap.Logger) (*Store, error) {
	store, err := LoadBuiltin(logger)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("reading profile directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("reading profile file", zap.String("path", path), zap.Error(err))
			continue
		}
		profile, err := parseProfile(data)
		if err != nil {
			logger.Warn("parsing profile file", zap.String("path", path), zap.Error(err))
			continue
		}
		store.profiles = append(store.profiles, profile)
	}

	return store, nil
}

func parseProfile(data []byte) (*upnpmodel.DeviceProfile, error) {
	var fp fileProfile
	if err := json.Unmarshal(data, &fp); err != nil {
		return nil, err
	}
	if fp.Name == "" {
		return nil, fmt.Errorf("profile missing name")
	}

	profile := &upnpmodel.DeviceProfile{
		Name: fp.Name,
		Match: upnpmodel.MatchCriteria{
			Manufacturer: fp.Match.Manufacturer,
			ModelName:    fp.Match.ModelName,
			DeviceType:   fp.Match.DeviceType,
			ServerHeader: fp.Match.ServerHeader,
		},
		Notes: fp.Notes,
	}

	if len(fp.UPnP) > 0 {
		profile.UPnP = make(map[string]upnpmodel.UPnPServiceHint, len(fp.UPnP))
		for name, hint := range fp.UPnP {
			profile.UPnP[name] = upnpmodel.UPnPServiceHint{ServiceType: hint.ServiceType, ControlURL: hint.ControlURL}
		}
	}

	profile.ECP = toEndpoint(fp.ECP)
	profile.WAM = toEndpoint(fp.WAM)
	profile.Cast = toEndpoint(fp.Cast)
	profile.HEOS = toEndpoint(fp.HEOS)
	profile.MusicCast = toEndpoint(fp.MusicCast)
	profile.JSONRPC = toEndpoint(fp.JSONRPC)
	profile.SoundTouch = toEndpoint(fp.SoundTouch)

	return profile, nil
}

func toEndpoint(fe *fileEndpoint) *upnpmodel.Endpoint {
	if fe == nil {
		return nil
	}
	return &upnpmodel.Endpoint{Port: fe.Port, Extra: fe.Extra}
}

// genericFallback is the designated profile that matches any device
// exposing a MediaRenderer service with score 1, per spec.md §3.
func genericFallback() *upnpmodel.DeviceProfile {
	return &upnpmodel.DeviceProfile{
		Name:              genericFallbackName,
		IsGenericFallback: true,
		Match:             upnpmodel.MatchCriteria{DeviceType: []string{"MediaRenderer"}},
	}
}
