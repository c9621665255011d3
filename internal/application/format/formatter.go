// Package format renders notification events as a log line and as Slack
// Block Kit blocks. Everything here is pure: the output depends only on the
// event and the project id.
package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gke-notify/internal/domain"
)

// consoleURLTemplate takes resource type, location, resource name and project.
const consoleURLTemplate = "https://console.cloud.google.com/kubernetes/%s/details/%s/%s/details?project=%s"

// Block Kit limits. Slack rejects the whole message with invalid_blocks when
// any of them is exceeded.
const (
	maxFieldsPerSection = 10
	maxFieldText        = 2000
	maxSectionText      = 3000
	maxBlocks           = 50
	maxMessageText      = 4000
)

const ellipsis = "…"

const (
	iconDefault  = ":gear:"
	iconSecurity = ":rotating_light:"
)

// Format renders ev. projectID overrides the project carried by the event,
// when non-empty.
func Format(ev domain.NotificationEvent, projectID string) domain.FormattedMessage {
	h := ev.Header()
	if projectID == "" {
		projectID = h.Project
	}

	r := renderer{h: h, project: projectID}
	switch e := ev.(type) {
	case *domain.UpgradeAvailableEvent:
		r.upgradeAvailable(e)
	case *domain.UpgradeEvent:
		r.upgrade(e)
	case *domain.SecurityBulletinEvent:
		r.securityBulletin(e)
	case *domain.GenericEvent:
		r.generic(e)
	}
	return r.message()
}

// Preview returns the webhook body for msg without sending it. The same
// shape pastes into Slack's Block Kit Builder.
func Preview(msg domain.FormattedMessage) map[string]any {
	return map[string]any{"text": msg.Text, "blocks": msg.Blocks}
}

// ConsoleURL builds the Cloud Console link for a resource. It returns ""
// when the resource has no name.
func ConsoleURL(projectID string, res domain.Resource) string {
	if res.Name == "" {
		return ""
	}
	typ := strings.ToLower(res.Type)
	if typ == "" {
		typ = "resource"
	}
	loc := res.Location
	if loc == "" {
		loc = "-"
	}
	return fmt.Sprintf(consoleURLTemplate, typ, loc, res.Name, projectID)
}

// Transition renders a version change as "from -> to".
func Transition(from, to string) string {
	switch {
	case from != "" && to != "":
		return from + " -> " + to
	case to != "":
		return to
	default:
		return from
	}
}

type renderer struct {
	h       *domain.EventHeader
	project string

	icon    string
	summary string
	lead    []domain.TextObject // fields that must come first
	fields  []domain.TextObject
	notes   []string // extra text sections after the fields
}

func (r *renderer) upgradeAvailable(e *domain.UpgradeAvailableEvent) {
	v := Transition(e.CurrentVersion, e.TargetVersion)
	r.summary = join("upgrade available", v)
	if e.ReleaseChannel != "" {
		r.summary += " (" + e.ReleaseChannel + " channel)"
	}
	r.context(e.ResourceType)
	r.version(e.CurrentVersion, e.TargetVersion)
	r.field("Release Channel", e.ReleaseChannel)
	r.link()
	r.note("Details", r.h.Description)
}

func (r *renderer) upgrade(e *domain.UpgradeEvent) {
	v := Transition(e.CurrentVersion, e.TargetVersion)
	r.summary = join("upgrading", v)
	if e.Operation != "" {
		r.summary += " (operation " + e.Operation + ")"
	}
	r.context(e.ResourceType)
	r.version(e.CurrentVersion, e.TargetVersion)
	r.field("Operation", e.Operation)
	r.field("Started", e.OperationStartTime)
	r.link()
	r.note("Details", r.h.Description)
}

func (r *renderer) securityBulletin(e *domain.SecurityBulletinEvent) {
	r.icon = iconSecurity
	severity := e.Severity
	if severity == "" {
		severity = "UNSPECIFIED"
	}
	r.summary = join(severity, e.BulletinID)
	if e.BriefDescription != "" {
		r.summary += ": " + e.BriefDescription
	}
	r.lead = append(r.lead, domain.Markdown(fmt.Sprintf("*Severity*\n%s *%s*", iconSecurity, escape(severity))))

	if e.BulletinURI != "" {
		label := e.BulletinID
		if label == "" {
			label = "View Details"
		}
		r.fields = append(r.fields, domain.Markdown(fmt.Sprintf("*Security Bulletin*\n<%s|%s>", e.BulletinURI, escape(label))))
	} else {
		r.field("Security Bulletin", e.BulletinID)
	}
	r.field("Affected Resource Type", e.ResourceTypeAffected)
	r.field("Manual Steps Required", yesNo(e.ManualStepsRequired))
	r.field("Patched Versions", strings.Join(e.PatchedVersions, "\n"))
	r.field("Suggested Upgrade Target", e.SuggestedUpgradeTarget)
	r.field("Affected Minors", strings.Join(e.AffectedSupportedMinors, ", "))
	r.field("CVEs", strings.Join(e.CVEIDs, ", "))
	r.context("")
	r.link()
	r.note("Brief Description", e.BriefDescription)
}

func (r *renderer) generic(e *domain.GenericEvent) {
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	r.context("")
	for _, k := range keys {
		v := attributeValue(e.Attributes[k])
		pairs = append(pairs, k+"="+v)
		r.fields = append(r.fields, domain.Markdown(fmt.Sprintf("*%s*\n%s", escape(k), escape(v))))
	}
	r.link()

	r.summary = r.h.Description
	if r.summary == "" {
		r.summary = strings.Join(pairs, " ")
	}
	r.note("Details", r.h.Description)
}

// context adds the fields locating the resource.
func (r *renderer) context(resourceType string) {
	res := r.h.Resource
	r.field("Resource Type", firstNonEmpty(res.Type, resourceType))
	r.field("Location", res.Location)
	r.field("Namespace", res.Namespace)
	r.field("Project", r.project)
	if len(res.Labels) > 0 {
		keys := make([]string, 0, len(res.Labels))
		for k := range res.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		labels := make([]string, len(keys))
		for i, k := range keys {
			labels[i] = k + "=" + res.Labels[k]
		}
		r.field("Labels", strings.Join(labels, ", "))
	}
}

func (r *renderer) link() {
	if u := ConsoleURL(r.project, r.h.Resource); u != "" {
		r.fields = append(r.fields, domain.Markdown(fmt.Sprintf("*Resource*\n<%s|%s>", u, escape(r.h.Resource.Name))))
	}
}

// version adds the "from -> to" field. The arrow is kept literal.
func (r *renderer) version(from, to string) {
	if v := Transition(escape(from), escape(to)); v != "" {
		r.fields = append(r.fields, domain.Markdown("*Version*\n"+v))
	}
}

func (r *renderer) field(title, value string) {
	if value == "" {
		return
	}
	r.fields = append(r.fields, domain.Markdown(fmt.Sprintf("*%s*\n%s", title, escape(value))))
}

func (r *renderer) note(title, text string) {
	if text == "" {
		return
	}
	r.notes = append(r.notes, fmt.Sprintf("*%s*\n%s", title, escape(text)))
}

func (r *renderer) message() domain.FormattedMessage {
	icon := r.icon
	if icon == "" {
		icon = iconDefault
	}
	line := r.line()

	title := fmt.Sprintf("%s *%s* for %s", icon, escape(r.h.Type), escape(r.h.Resource.Label()))
	blocks := []domain.Block{section(title)}

	all := append(append([]domain.TextObject{}, r.lead...), r.fields...)
	for i := range all {
		all[i].Text = clipEscaped(all[i].Text, maxFieldText)
	}
	for len(all) > 0 {
		n := min(len(all), maxFieldsPerSection)
		blocks = append(blocks, domain.Block{Type: domain.BlockSection, Fields: all[:n]})
		all = all[n:]
	}
	for _, n := range r.notes {
		blocks = append(blocks, section(n))
	}
	// The context line always comes last.
	if len(blocks) > maxBlocks-1 {
		blocks = blocks[:maxBlocks-1]
	}
	blocks = append(blocks, domain.Block{
		Type:     domain.BlockContext,
		Elements: []domain.TextObject{domain.Markdown(clipEscaped(escape(line), maxSectionText))},
	})

	return domain.FormattedMessage{Text: clip(line, maxMessageText), Blocks: blocks}
}

func section(text string) domain.Block {
	return domain.Block{Type: domain.BlockSection, Text: ptr(domain.Markdown(clipEscaped(text, maxSectionText)))}
}

// clip shortens s to at most limit characters, ending with an ellipsis.
func clip(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit-1]) + ellipsis
}

// clipEscaped is clip for escaped mrkdwn: a cut never leaves half an entity.
func clipEscaped(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	out := string([]rune(s)[:limit-1])
	// Entities are at most 5 bytes ("&amp;"), so a partial one is in the last 4.
	if i := strings.LastIndexByte(out, '&'); i >= 0 && i >= len(out)-4 && !strings.Contains(out[i:], ";") {
		out = out[:i]
	}
	return out + ellipsis
}

// line renders "<timestamp> <subtype> <resource> <short-summary>".
func (r *renderer) line() string {
	ts := "-"
	if !r.h.PublishedAt.IsZero() {
		ts = r.h.PublishedAt.UTC().Format(time.RFC3339)
	}
	summary := strings.Join(strings.Fields(r.summary), " ")
	if summary == "" {
		summary = "-"
	}
	return strings.Join([]string{ts, oneLine(r.h.Type), oneLine(r.h.Resource.Label()), summary}, " ")
}

// attributeValue renders strings unquoted and anything else as compact JSON.
func attributeValue(raw json.RawMessage) string {
	if t := bytes.TrimSpace(raw); len(t) > 0 && t[0] == '"' {
		var s string
		if err := json.Unmarshal(t, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escape(s string) string { return slackEscaper.Replace(s) }

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), "_")
	if s == "" {
		return "-"
	}
	return s
}

func join(parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func ptr[T any](v T) *T { return &v }
