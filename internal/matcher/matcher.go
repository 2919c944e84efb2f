// Package matcher scores a Device against every profile in the Profile
// Store and returns a ranked list of matches, per spec.md §3/§4.5.
package matcher

import (
	"sort"
	"strings"

	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// category weights, per spec.md §3: manufacturer 4, model 3, device_type 2,
// server 1.
const (
	weightManufacturer = 4
	weightModelName    = 3
	weightDeviceType   = 2
	weightServerHeader = 1
)

// Store is the subset of profilestore.Store the matcher needs: an immutable
// list of profiles to score against.
type Store interface {
	Profiles() []*upnpmodel.DeviceProfile
}

// Match scores device against every profile in store and returns the
// results sorted by score descending, ties broken by more specific (longer)
// matching substring. A profile contributes to the result only if its score
// is greater than zero; the generic fallback instead contributes with a
// fixed score of 1 whenever the device exposes a MediaRenderer service.
func Match(device upnpmodel.Device, store Store) []upnpmodel.ProfileMatch {
	var matches []upnpmodel.ProfileMatch

	for _, profile := range store.Profiles() {
		score, longest := scoreProfile(device, profile)
		if profile.IsGenericFallback {
			if !exposesMediaRenderer(device) {
				continue
			}
			score = 1
		} else if score <= 0 {
			continue
		}
		matches = append(matches, upnpmodel.ProfileMatch{Profile: profile, Score: score})
		_ = longest
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return longestMatchLen(device, matches[i].Profile) > longestMatchLen(device, matches[j].Profile)
	})

	return matches
}

// Best returns the single highest-scoring match, or a zero-value
// ProfileMatch (Profile == nil) if nothing matched at all.
func Best(device upnpmodel.Device, store Store) upnpmodel.ProfileMatch {
	matches := Match(device, store)
	if len(matches) == 0 {
		return upnpmodel.ProfileMatch{}
	}
	return matches[0]
}

func scoreProfile(device upnpmodel.Device, profile *upnpmodel.DeviceProfile) (int, int) {
	score := 0
	longest := 0

	if n := longestSubstringMatch(device.Manufacturer, profile.Match.Manufacturer); n > 0 {
		score += weightManufacturer
		longest = max(longest, n)
	}
	if n := longestSubstringMatch(device.ModelName, profile.Match.ModelName); n > 0 {
		score += weightModelName
		longest = max(longest, n)
	}
	if n := longestSubstringMatch(device.DeviceType, profile.Match.DeviceType); n > 0 {
		score += weightDeviceType
		longest = max(longest, n)
	}
	if n := longestSubstringMatch(device.ServerHeader, profile.Match.ServerHeader); n > 0 {
		score += weightServerHeader
		longest = max(longest, n)
	}

	return score, longest
}

func longestMatchLen(device upnpmodel.Device, profile *upnpmodel.DeviceProfile) int {
	_, longest := scoreProfile(device, profile)
	return longest
}

// longestSubstringMatch returns the length of the longest candidate found as
// a case-insensitive substring of field, or 0 if none match.
func longestSubstringMatch(field string, candidates []string) int {
	if field == "" {
		return 0
	}
	lowerField := strings.ToLower(field)
	longest := 0
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if strings.Contains(lowerField, strings.ToLower(c)) && len(c) > longest {
			longest = len(c)
		}
	}
	return longest
}

func exposesMediaRenderer(device upnpmodel.Device) bool {
	if strings.Contains(device.DeviceType, "MediaRenderer") {
		return true
	}
	for _, svc := range device.Services {
		if strings.Contains(svc.ServiceType, "MediaRenderer") {
			return true
		}
	}
	return false
}

