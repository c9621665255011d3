package event

import (
	"encoding/json"
	"testing"

	"github.com/gke-notify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, payload string) (domain.NotificationEvent, error) {
	t.Helper()
	return NewParser(nil).Parse(domain.RawPayload(payload))
}

func TestParse_UpgradeAvailable(t *testing.T) {
	ev, err := parse(t, `{"type":"UpgradeAvailableEvent","resource":{"type":"master","name":"cluster-a"},"currentVersion":"1.27","targetVersion":"1.28"}`)
	require.NoError(t, err)

	ua, ok := ev.(*domain.UpgradeAvailableEvent)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, domain.TypeUpgradeAvailable, ua.Type)
	assert.Equal(t, "master", ua.Resource.Type)
	assert.Equal(t, "cluster-a", ua.Resource.Name)
	assert.Equal(t, "1.27", ua.CurrentVersion)
	assert.Equal(t, "1.28", ua.TargetVersion)
}

func TestParse_UpgradeAvailable_VersionAliasAndChannelObject(t *testing.T) {
	ev, err := parse(t, `{"type":"UpgradeAvailableEvent","version":"1.29.1-gke.100","releaseChannel":{"channel":"REGULAR"},"resourceType":"NODE_POOL"}`)
	require.NoError(t, err)

	ua := ev.(*domain.UpgradeAvailableEvent)
	assert.Equal(t, "1.29.1-gke.100", ua.TargetVersion)
	assert.Equal(t, "REGULAR", ua.ReleaseChannel)
	assert.True(t, ua.IsNodePool())
}

func TestParse_Upgrade(t *testing.T) {
	ev, err := parse(t, `{"type":"UpgradeEvent","resource":"projects/p/locations/us-central1/clusters/c1/nodePools/pool-1","currentVersion":"1.27.3","targetVersion":"1.28.1","operation":"operation-123","operationStartTime":"2023-06-01T10:00:00Z"}`)
	require.NoError(t, err)

	up, ok := ev.(*domain.UpgradeEvent)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, "nodePool", up.Resource.Type)
	assert.Equal(t, "pool-1", up.Resource.Name)
	assert.Equal(t, "us-central1", up.Resource.Location)
	assert.Equal(t, "operation-123", up.Operation)
	assert.Equal(t, "1.28.1", up.TargetVersion)
}

func TestParse_SecurityBulletin(t *testing.T) {
	ev, err := parse(t, `{
		"type":"SecurityBulletinEvent",
		"resource":{"type":"cluster","name":"prod","labels":{"team":"infra"}},
		"bulletinId":"GCP-2023-001","bulletinUri":"https://cloud.google.com/anthos/clusters/docs/security-bulletins#gcp-2023-001",
		"severity":"HIGH","briefDescription":"A vulnerability was found","cveIds":["CVE-2023-0001"],
		"patchedVersions":["1.27.4-gke.900"],"manualStepsRequired":true
	}`)
	require.NoError(t, err)

	sb, ok := ev.(*domain.SecurityBulletinEvent)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, "HIGH", sb.Severity)
	assert.Equal(t, "GCP-2023-001", sb.BulletinID)
	assert.Equal(t, []string{"CVE-2023-0001"}, sb.CVEIDs)
	assert.True(t, sb.ManualStepsRequired)
	assert.Equal(t, map[string]string{"team": "infra"}, sb.Resource.Labels)
	assert.Empty(t, sb.SuggestedUpgradeTarget)
}

func TestParse_KnownDiscriminatorsMapToTheirVariant(t *testing.T) {
	cases := map[string]string{
		domain.TypeUpgradeAvailable:                        "*domain.UpgradeAvailableEvent",
		domain.TypeUpgrade:                                 "*domain.UpgradeEvent",
		domain.TypeSecurityBulletin:                        "*domain.SecurityBulletinEvent",
		domain.TypeURLPrefix + domain.TypeUpgrade:          "*domain.UpgradeEvent",
		domain.TypeURLPrefix + domain.TypeSecurityBulletin: "*domain.SecurityBulletinEvent",
	}
	for typ, want := range cases {
		body, _ := json.Marshal(map[string]string{"type": typ})
		ev, err := parse(t, string(body))
		require.NoError(t, err, typ)
		assert.Equal(t, want, typeName(ev), typ)
		assert.Equal(t, typ, ev.Header().Type)
	}
}

func TestParse_DiscriminatorIsCaseSensitive(t *testing.T) {
	ev, err := parse(t, `{"type":"upgradeevent"}`)
	require.NoError(t, err)
	_, ok := ev.(*domain.GenericEvent)
	assert.True(t, ok)
}

func TestParse_UnknownTypeIsGeneric(t *testing.T) {
	ev, err := parse(t, `{"type":"FutureUnknownEvent","foo":"bar","nested":{"a":1},"resource":["odd"]}`)
	require.NoError(t, err)

	g, ok := ev.(*domain.GenericEvent)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, "FutureUnknownEvent", g.Type)
	assert.JSONEq(t, `"bar"`, string(g.Attributes["foo"]))
	assert.JSONEq(t, `{"a":1}`, string(g.Attributes["nested"]))
	assert.JSONEq(t, `["odd"]`, string(g.Attributes["resource"]))
	assert.NotContains(t, g.Attributes, "type")
}

func TestParse_MalformedJSON(t *testing.T) {
	for _, payload := range []string{`{"type":`, `[1,2]`, `"UpgradeEvent"`, `null`, ``} {
		_, err := parse(t, payload)
		var pe *domain.ParseError
		require.ErrorAs(t, err, &pe, payload)
		assert.Equal(t, domain.ParseMalformedJSON, pe.Kind, payload)
	}
}

func TestParse_WrongFieldTypeOnKnownVariant(t *testing.T) {
	_, err := parse(t, `{"type":"UpgradeEvent","currentVersion":127}`)
	var pe *domain.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.ParseMalformedJSON, pe.Kind)
}

func TestParse_MissingDiscriminator(t *testing.T) {
	for _, payload := range []string{`{}`, `{"type":""}`, `{"type":42}`, `{"type":null,"foo":"bar"}`} {
		_, err := parse(t, payload)
		var pe *domain.ParseError
		require.ErrorAs(t, err, &pe, payload)
		assert.Equal(t, domain.ParseMissingDiscriminator, pe.Kind, payload)
	}
}

func TestParseAttributes_NativeShape(t *testing.T) {
	attrs := map[string]string{
		domain.AttrProjectID:       "123456789",
		domain.AttrClusterName:     "prod",
		domain.AttrClusterLocation: "us-central1",
		domain.AttrTypeURL:         domain.TypeURLPrefix + domain.TypeUpgradeAvailable,
		domain.AttrPayload:         `{"version":"1.28.2-gke.1157000","resourceType":"MASTER","releaseChannel":{"channel":"STABLE"}}`,
	}
	ev, err := NewParser(nil).ParseAttributes(attrs, domain.RawPayload("New master version \"1.28.2-gke.1157000\" is available for upgrade in the STABLE channel.\n"))
	require.NoError(t, err)

	ua, ok := ev.(*domain.UpgradeAvailableEvent)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, "cluster", ua.Resource.Type)
	assert.Equal(t, "prod", ua.Resource.Name)
	assert.Equal(t, "us-central1", ua.Resource.Location)
	assert.Equal(t, "123456789", ua.Project)
	assert.Equal(t, "STABLE", ua.ReleaseChannel)
	assert.Equal(t, "1.28.2-gke.1157000", ua.TargetVersion)
	assert.Contains(t, ua.Description, "is available for upgrade")
	assert.False(t, ua.IsNodePool())
}

func TestParseAttributes_NodePoolResourcePath(t *testing.T) {
	attrs := map[string]string{
		domain.AttrClusterName:     "prod",
		domain.AttrClusterLocation: "us-central1",
		domain.AttrTypeURL:         domain.TypeURLPrefix + domain.TypeUpgradeAvailable,
		domain.AttrPayload:         `{"version":"1.28","resourceType":"NODE_POOL","resource":"projects/p/locations/us-central1/clusters/prod/nodePools/default-pool"}`,
	}
	ev, err := NewParser(nil).ParseAttributes(attrs, nil)
	require.NoError(t, err)
	ua := ev.(*domain.UpgradeAvailableEvent)
	assert.Equal(t, "default-pool", ua.Resource.Name)
	assert.True(t, ua.IsNodePool())
}

func TestParseAttributes_Errors(t *testing.T) {
	p := NewParser(nil)

	_, err := p.ParseAttributes(map[string]string{domain.AttrPayload: "{}"}, nil)
	var pe *domain.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.ParseMissingDiscriminator, pe.Kind)

	_, err = p.ParseAttributes(map[string]string{domain.AttrTypeURL: "x", domain.AttrPayload: "{oops"}, nil)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.ParseMalformedJSON, pe.Kind)
}

func TestRegistry_Extensible(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Known(domain.TypeUpgrade))

	r.Register("MaintenanceEvent", func(h domain.EventHeader, _ []byte) (domain.NotificationEvent, error) {
		return &domain.UpgradeEvent{EventHeader: h, Operation: "maintenance"}, nil
	})
	p := NewParser(r)

	ev, err := p.Parse(domain.RawPayload(`{"type":"MaintenanceEvent"}`))
	require.NoError(t, err)
	assert.Equal(t, "maintenance", ev.(*domain.UpgradeEvent).Operation)

	ev, err = p.Parse(domain.RawPayload(`{"type":"UpgradeEvent"}`))
	require.NoError(t, err)
	_, ok := ev.(*domain.GenericEvent)
	assert.True(t, ok)
}

func typeName(ev domain.NotificationEvent) string {
	switch ev.(type) {
	case *domain.UpgradeAvailableEvent:
		return "*domain.UpgradeAvailableEvent"
	case *domain.UpgradeEvent:
		return "*domain.UpgradeEvent"
	case *domain.SecurityBulletinEvent:
		return "*domain.SecurityBulletinEvent"
	case *domain.GenericEvent:
		return "*domain.GenericEvent"
	default:
		return "unknown"
	}
}
