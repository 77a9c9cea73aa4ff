package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/astroveda/consult/internal/consultation"
	"github.com/astroveda/consult/internal/models"
)

// Profile is the participant identity and endpoints, loaded from consult.yaml.
type Profile struct {
	APIURL        string   `yaml:"api_url"`
	SignalURL     string   `yaml:"signal_url"`
	Token         string   `yaml:"token"`
	ParticipantID string   `yaml:"participant_id"`
	DisplayName   string   `yaml:"display_name"`
	Role          string   `yaml:"role"`
	ICEServers    []string `yaml:"ice_servers"`
	NoVideo       bool     `yaml:"no_video"`
}

// LoadProfile reads a YAML profile from path. CONSULT_TOKEN overrides the
// token in the file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", path, err)
	}
	return ParseProfile(data, os.Getenv("CONSULT_TOKEN"))
}

// ParseProfile unmarshals YAML bytes into a validated Profile.
func ParseProfile(data []byte, tokenOverride string) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profile: parse: %w", err)
	}
	if tokenOverride != "" {
		p.Token = tokenOverride
	}
	p.applyDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) applyDefaults() {
	p.APIURL = strings.TrimRight(p.APIURL, "/")
	if p.APIURL == "" {
		p.APIURL = "http://localhost:8000"
	}
	if p.SignalURL == "" {
		p.SignalURL = p.APIURL
	}
	if p.Role == "" {
		p.Role = string(models.RoleUser)
	}
	if p.DisplayName == "" {
		if p.Role == string(models.RoleAstrologer) {
			p.DisplayName = consultation.PartnerAstrologer
		} else {
			p.DisplayName = "You"
		}
	}
	if len(p.ICEServers) == 0 {
		p.ICEServers = append([]string(nil), consultation.DefaultICEServers...)
	}
}

func (p *Profile) validate() error {
	var errs []string
	if p.Token == "" {
		errs = append(errs, "token is required")
	}
	if strings.TrimSpace(p.ParticipantID) == "" {
		errs = append(errs, "participant_id is required")
	}
	switch models.Role(p.Role) {
	case models.RoleUser, models.RoleAstrologer:
	default:
		errs = append(errs, fmt.Sprintf("role %q must be user or astrologer", p.Role))
	}
	for i, s := range p.ICEServers {
		if !strings.HasPrefix(s, "stun:") && !strings.HasPrefix(s, "turn:") && !strings.HasPrefix(s, "turns:") {
			errs = append(errs, fmt.Sprintf("ice_servers[%d] must be a stun: or turn: url", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("profile: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Identity is the participant this profile acts as.
func (p *Profile) Identity() consultation.Identity {
	return consultation.Identity{
		ParticipantID: models.ID(strings.TrimSpace(p.ParticipantID)),
		DisplayName:   p.DisplayName,
		Role:          models.Role(p.Role),
		Token:         p.Token,
	}
}
