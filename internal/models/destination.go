package models

import (
	"fmt"
	"sort"
	"strings"
)

// Destination is a remote storage backend a file can be uploaded to.
type Destination string

const (
	DestinationS3    Destination = "s3"
	DestinationAzure Destination = "azure"
)

// AllDestinations lists every destination in display order.
var AllDestinations = []Destination{DestinationS3, DestinationAzure}

// ParseDestination accepts "s3", "azure" (any case) and returns the
// matching destination.
func ParseDestination(s string) (Destination, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s3", "aws":
		return DestinationS3, nil
	case "azure", "blob":
		return DestinationAzure, nil
	}

	return "", fmt.Errorf("unknown destination %q (want s3 or azure)", s)
}

// Label is the human-readable provider name.
func (d Destination) Label() string {
	switch d {
	case DestinationS3:
		return "AWS S3"
	case DestinationAzure:
		return "Azure Blob"
	}

	return string(d)
}

// Destinations is a set of destinations. The zero value is empty.
type Destinations map[Destination]struct{}

// NewDestinations builds a set from the given destinations.
func NewDestinations(ds ...Destination) Destinations {
	set := make(Destinations, len(ds))
	for _, d := range ds {
		set[d] = struct{}{}
	}

	return set
}

// ParseDestinations parses each name and returns the resulting set.
func ParseDestinations(names []string) (Destinations, error) {
	set := make(Destinations, len(names))

	for _, n := range names {
		d, err := ParseDestination(n)
		if err != nil {
			return nil, err
		}

		set[d] = struct{}{}
	}

	return set, nil
}

// With returns a copy of the set including d.
func (s Destinations) With(d Destination) Destinations {
	out := make(Destinations, len(s)+1)
	for k := range s {
		out[k] = struct{}{}
	}

	out[d] = struct{}{}

	return out
}

// Has reports whether d is in the set.
func (s Destinations) Has(d Destination) bool {
	_, ok := s[d]
	return ok
}

// Empty reports whether the set has no members.
func (s Destinations) Empty() bool {
	return len(s) == 0
}

// Sorted returns the members in a stable order.
func (s Destinations) Sorted() []Destination {
	out := make([]Destination, 0, len(s))
	for d := range s {
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}
