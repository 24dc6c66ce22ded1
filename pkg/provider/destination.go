package provider

import (
	"fmt"
	"net/url"
	"strings"
)

// Destination is a parsed export target: a local directory or an
// s3://bucket/prefix URI.
type Destination struct {
	Type   ProviderType
	Dir    string
	Bucket string
	Prefix string
}

// ParseDestination parses an export target. An empty string means the
// current directory.
func ParseDestination(raw string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Destination{Type: ProviderFile, Dir: "."}, nil
	}

	if !strings.Contains(raw, "://") {
		return Destination{Type: ProviderFile, Dir: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}
	switch u.Scheme {
	case "s3":
		if u.Host == "" {
			return Destination{}, fmt.Errorf("%w: bucket is required in %q", ErrInvalidDestination, raw)
		}
		prefix := strings.TrimPrefix(u.Path, "/")
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return Destination{Type: ProviderS3, Bucket: u.Host, Prefix: prefix}, nil
	case "file":
		return Destination{Type: ProviderFile, Dir: u.Path}, nil
	default:
		return Destination{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDestination, u.Scheme)
	}
}

// String renders the destination back to its URI form.
func (d Destination) String() string {
	if d.Type == ProviderS3 {
		return "s3://" + d.Bucket + "/" + d.Prefix
	}
	return d.Dir
}
