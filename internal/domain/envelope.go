package domain

// PushEnvelope is the JSON body Pub/Sub push subscriptions POST to the service.
//
// Pub/Sub documents camelCase field names but has historically also sent
// snake_case duplicates; both spellings are accepted.
type PushEnvelope struct {
	Message      PushMessage `json:"message"`
	Subscription string      `json:"subscription"`
}

// PushMessage is the message wrapped by PushEnvelope. Data is base64 encoded.
type PushMessage struct {
	Data        string            `json:"data"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	MessageID   string            `json:"messageId,omitempty"`
	PublishTime string            `json:"publishTime,omitempty"`

	LegacyMessageID   string `json:"message_id,omitempty"`
	LegacyPublishTime string `json:"publish_time,omitempty"`
}

// ID returns the message id in whichever spelling was sent.
func (m PushMessage) ID() string {
	if m.MessageID != "" {
		return m.MessageID
	}
	return m.LegacyMessageID
}

// Published returns the publish time string in whichever spelling was sent.
func (m PushMessage) Published() string {
	if m.PublishTime != "" {
		return m.PublishTime
	}
	return m.LegacyPublishTime
}

// Attribute returns a message attribute or "" when absent.
func (m PushMessage) Attribute(key string) string {
	return m.Attributes[key]
}

// RawPayload is the decoded message data, expected to be UTF-8 JSON.
type RawPayload []byte

// Attribute keys GKE sets on cluster notifications.
const (
	AttrProjectID       = "project_id"
	AttrClusterName     = "cluster_name"
	AttrClusterLocation = "cluster_location"
	AttrTypeURL         = "type_url"
	AttrPayload         = "payload"
)
