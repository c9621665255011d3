package event

import (
	"encoding/json"

	"github.com/gke-notify/internal/domain"
)

// DecodeFunc builds a typed event from the payload object. The header is
// already filled with the discriminator, resource and description.
type DecodeFunc func(h domain.EventHeader, payload []byte) (domain.NotificationEvent, error)

// Registry maps discriminators to decoders. Matching is exact and
// case-sensitive. Register during startup only; lookups are read-only and
// safe for concurrent use afterwards.
type Registry struct {
	decoders map[string]DecodeFunc
}

// NewRegistry returns an empty registry. Every discriminator resolves to
// the generic variant until decoders are registered.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]DecodeFunc)}
}

// DefaultRegistry knows the GKE subtypes under their short names and their
// full type URLs.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for name, fn := range map[string]DecodeFunc{
		domain.TypeUpgradeAvailable: decodeUpgradeAvailable,
		domain.TypeUpgrade:          decodeUpgrade,
		domain.TypeSecurityBulletin: decodeSecurityBulletin,
	} {
		r.Register(name, fn)
		r.Register(domain.TypeURLPrefix+name, fn)
	}
	return r
}

// Register adds or replaces the decoder for a discriminator.
func (r *Registry) Register(discriminator string, fn DecodeFunc) {
	r.decoders[discriminator] = fn
}

// Lookup returns the decoder registered for discriminator.
func (r *Registry) Lookup(discriminator string) (DecodeFunc, bool) {
	fn, ok := r.decoders[discriminator]
	return fn, ok
}

// Known reports whether discriminator has a typed decoder.
func (r *Registry) Known(discriminator string) bool {
	_, ok := r.decoders[discriminator]
	return ok
}

type upgradeAvailablePayload struct {
	CurrentVersion string         `json:"currentVersion"`
	TargetVersion  string         `json:"targetVersion"`
	Version        string         `json:"version"`
	ReleaseChannel releaseChannel `json:"releaseChannel"`
	ResourceType   string         `json:"resourceType"`
}

func decodeUpgradeAvailable(h domain.EventHeader, payload []byte) (domain.NotificationEvent, error) {
	var p upgradeAvailablePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	target := p.TargetVersion
	if target == "" {
		target = p.Version
	}
	return &domain.UpgradeAvailableEvent{
		EventHeader:    h,
		CurrentVersion: p.CurrentVersion,
		TargetVersion:  target,
		ReleaseChannel: string(p.ReleaseChannel),
		ResourceType:   p.ResourceType,
	}, nil
}

type upgradePayload struct {
	CurrentVersion     string `json:"currentVersion"`
	TargetVersion      string `json:"targetVersion"`
	Operation          string `json:"operation"`
	OperationStartTime string `json:"operationStartTime"`
	ResourceType       string `json:"resourceType"`
}

func decodeUpgrade(h domain.EventHeader, payload []byte) (domain.NotificationEvent, error) {
	var p upgradePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return &domain.UpgradeEvent{
		EventHeader:        h,
		CurrentVersion:     p.CurrentVersion,
		TargetVersion:      p.TargetVersion,
		Operation:          p.Operation,
		OperationStartTime: p.OperationStartTime,
		ResourceType:       p.ResourceType,
	}, nil
}

type securityBulletinPayload struct {
	BulletinID              string   `json:"bulletinId"`
	BulletinURI             string   `json:"bulletinUri"`
	Severity                string   `json:"severity"`
	BriefDescription        string   `json:"briefDescription"`
	CVEIDs                  []string `json:"cveIds"`
	AffectedSupportedMinors []string `json:"affectedSupportedMinors"`
	PatchedVersions         []string `json:"patchedVersions"`
	SuggestedUpgradeTarget  string   `json:"suggestedUpgradeTarget"`
	ManualStepsRequired     bool     `json:"manualStepsRequired"`
	ResourceTypeAffected    string   `json:"resourceTypeAffected"`
}

func decodeSecurityBulletin(h domain.EventHeader, payload []byte) (domain.NotificationEvent, error) {
	var p securityBulletinPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	return &domain.SecurityBulletinEvent{
		EventHeader:             h,
		BulletinID:              p.BulletinID,
		BulletinURI:             p.BulletinURI,
		Severity:                p.Severity,
		BriefDescription:        p.BriefDescription,
		CVEIDs:                  p.CVEIDs,
		AffectedSupportedMinors: p.AffectedSupportedMinors,
		PatchedVersions:         p.PatchedVersions,
		SuggestedUpgradeTarget:  p.SuggestedUpgradeTarget,
		ManualStepsRequired:     p.ManualStepsRequired,
		ResourceTypeAffected:    p.ResourceTypeAffected,
	}, nil
}

// releaseChannel accepts {"channel":"REGULAR"} as GKE sends it, or a bare string.
type releaseChannel string

func (c *releaseChannel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*c = releaseChannel(s)
		return nil
	}
	var obj struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*c = releaseChannel(obj.Channel)
	return nil
}
