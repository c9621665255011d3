package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Discriminators of the notification subtypes GKE publishes.
const (
	TypeUpgradeAvailable = "UpgradeAvailableEvent"
	TypeUpgrade          = "UpgradeEvent"
	TypeSecurityBulletin = "SecurityBulletinEvent"
)

// TypeURLPrefix prefixes the discriminators when GKE sends them as a type_url attribute.
const TypeURLPrefix = "type.googleapis.com/google.container.v1beta1."

// NotificationEvent is one decoded cluster notification. The set of
// implementations is closed: UpgradeAvailableEvent, UpgradeEvent,
// SecurityBulletinEvent and GenericEvent.
type NotificationEvent interface {
	// Header exposes the shared attributes; callers enriching an event in
	// place (publish time, project) write through it.
	Header() *EventHeader
	notificationEvent()
}

// EventHeader carries the attributes shared by every subtype.
type EventHeader struct {
	Type        string // discriminator exactly as received
	Resource    Resource
	Project     string // project the cluster lives in, when the message says so
	Description string
	PublishedAt time.Time
}

// Resource identifies what the notification is about.
type Resource struct {
	Type      string            `json:"type"`
	Name      string            `json:"name"`
	Location  string            `json:"location,omitempty"`
	Namespace string            `json:"namespace,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// UnmarshalJSON accepts either an object or a relative resource path such as
// "projects/p/locations/l/clusters/c/nodePools/np".
func (r *Resource) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var path string
		if err := json.Unmarshal(b, &path); err != nil {
			return err
		}
		*r = ResourceFromPath(path)
		return nil
	}
	type plain Resource
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Resource(p)
	return nil
}

// ResourceFromPath derives a Resource from a GKE relative resource path.
// The last collection/name pair wins; the location segment is kept.
func ResourceFromPath(path string) Resource {
	res := Resource{Name: path}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+1 < len(parts); i += 2 {
		switch parts[i] {
		case "locations", "zones":
			res.Location = parts[i+1]
		case "clusters":
			res.Type, res.Name = "cluster", parts[i+1]
		case "nodePools":
			res.Type, res.Name = "nodePool", parts[i+1]
		}
	}
	return res
}

// Label returns "type/name", or whichever half is present.
func (r Resource) Label() string {
	switch {
	case r.Type != "" && r.Name != "":
		return r.Type + "/" + r.Name
	case r.Name != "":
		return r.Name
	case r.Type != "":
		return r.Type
	default:
		return "-"
	}
}

// UpgradeAvailableEvent is sent when a new version is released for a resource.
type UpgradeAvailableEvent struct {
	EventHeader
	CurrentVersion string
	TargetVersion  string
	ReleaseChannel string
	ResourceType   string // MASTER or NODE_POOL
}

// UpgradeEvent is sent when a resource starts upgrading.
type UpgradeEvent struct {
	EventHeader
	CurrentVersion     string
	TargetVersion      string
	Operation          string
	OperationStartTime string
	ResourceType       string
}

// SecurityBulletinEvent is sent when a bulletin affecting the cluster is posted.
type SecurityBulletinEvent struct {
	EventHeader
	BulletinID              string
	BulletinURI             string
	Severity                string
	BriefDescription        string
	CVEIDs                  []string
	AffectedSupportedMinors []string
	PatchedVersions         []string
	SuggestedUpgradeTarget  string
	ManualStepsRequired     bool
	ResourceTypeAffected    string
}

// GenericEvent holds any subtype without a registered decoder. Attributes
// holds every payload key except the discriminator, unmodified.
type GenericEvent struct {
	EventHeader
	Attributes map[string]json.RawMessage
}

func (e *UpgradeAvailableEvent) Header() *EventHeader { return &e.EventHeader }
func (e *UpgradeEvent) Header() *EventHeader          { return &e.EventHeader }
func (e *SecurityBulletinEvent) Header() *EventHeader { return &e.EventHeader }
func (e *GenericEvent) Header() *EventHeader          { return &e.EventHeader }

func (*UpgradeAvailableEvent) notificationEvent() {}
func (*UpgradeEvent) notificationEvent()          {}
func (*SecurityBulletinEvent) notificationEvent() {}
func (*GenericEvent) notificationEvent()          {}

// IsNodePool reports whether the event concerns a node pool rather than the control plane.
func (e *UpgradeAvailableEvent) IsNodePool() bool {
	return isNodePool(e.ResourceType) || isNodePool(e.Resource.Type)
}

func isNodePool(t string) bool {
	return strings.EqualFold(strings.ReplaceAll(t, "_", ""), "nodepool")
}
