// Package profile loads account profiles from profiles.json.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/yumio/endwatch/pkg/attend"
)

// File is the profiles.json document shape.
type File struct {
	Profiles []*attend.Profile `json:"profiles"`
}

// Repository reads and validates the profiles file.
type Repository struct {
	path string
}

func NewRepository(path string) *Repository {
	return &Repository{path: path}
}

// Load reads profiles.json and rejects incomplete profiles.
func (r *Repository) Load() ([]*attend.Profile, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read profiles %s: %w", r.path, err)
	}

	var file File
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", r.path, err)
	}
	if len(file.Profiles) == 0 {
		return nil, fmt.Errorf("profiles %s: at least one profile required", r.path)
	}

	for i, p := range file.Profiles {
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("profiles %s: profile %d: %w", r.path, i+1, err)
		}
	}
	return file.Profiles, nil
}

func validate(p *attend.Profile) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("missing id")
	case p.Cred == "":
		return fmt.Errorf("missing cred")
	case p.SkGameRole == "":
		return fmt.Errorf("missing skGameRole")
	case p.Platform == "":
		return fmt.Errorf("missing platform")
	case p.VName == "":
		return fmt.Errorf("missing vName")
	}
	return nil
}

// FormatLabel returns a display name for a profile: the account name when
// present, otherwise a positional fallback.
func FormatLabel(p *attend.Profile, index int) string {
	if name := strings.TrimSpace(p.AccountName); name != "" {
		return name
	}
	if index > 0 {
		return fmt.Sprintf("Profile %d", index)
	}
	return "Profile"
}
