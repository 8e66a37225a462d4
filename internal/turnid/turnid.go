// Package turnid implements the TurnId value type: the immutable identity
// of one turn, optionally decorated with a sequence number, campaign id and
// human-readable custom name.
package turnid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var customNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// reserved custom names that would otherwise collide with operational
// tooling (test fixtures, debug endpoints, admin surfaces).
var reservedNames = map[string]struct{}{
	"test":   {},
	"debug":  {},
	"system": {},
	"admin":  {},
	"root":   {},
	"api":    {},
}

// TurnId is the immutable identity of one turn.
type TurnId struct {
	uuid           string
	sequenceNumber int64
	hasSequence    bool
	campaignID     string
	hasCampaign    bool
	customName     string
	hasCustomName  bool
	createdAt      time.Time
}

// Option customizes a new TurnId at construction time.
type Option func(*TurnId) error

// WithSequenceNumber sets the optional sequence number; must be >= 1.
func WithSequenceNumber(n int64) Option {
	return func(t *TurnId) error {
		if n < 1 {
			return fmt.Errorf("sequence_number must be >= 1, got %d", n)
		}
		t.sequenceNumber = n
		t.hasSequence = true
		return nil
	}
}

// WithCampaignID sets the optional campaign id.
func WithCampaignID(id string) Option {
	return func(t *TurnId) error {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("campaign_id must not be blank")
		}
		if strings.Contains(id, ";") {
			return fmt.Errorf("campaign_id must not contain ';'")
		}
		t.campaignID = id
		t.hasCampaign = true
		return nil
	}
}

// WithCustomName sets the optional human-readable name.
func WithCustomName(name string) Option {
	return func(t *TurnId) error {
		if !customNamePattern.MatchString(name) {
			return fmt.Errorf("custom_name must match %s", customNamePattern.String())
		}
		if _, reserved := reservedNames[strings.ToLower(name)]; reserved {
			return fmt.Errorf("custom_name %q is reserved", name)
		}
		t.customName = name
		t.hasCustomName = true
		return nil
	}
}

// WithCreatedAt overrides the creation timestamp (defaults to time.Now()).
func WithCreatedAt(at time.Time) Option {
	return func(t *TurnId) error {
		t.createdAt = at
		return nil
	}
}

// New creates a fresh TurnId with a generated uuid.
func New(opts ...Option) (TurnId, error) {
	return build(uuid.NewString(), opts...)
}

// FromUUID creates a TurnId from a caller-supplied uuid string (e.g. a
// client-provided turn_id on the run request).
func FromUUID(id string, opts ...Option) (TurnId, error) {
	if _, err := uuid.Parse(id); err != nil {
		return TurnId{}, fmt.Errorf("uuid is invalid: %w", err)
	}
	return build(id, opts...)
}

func build(id string, opts ...Option) (TurnId, error) {
	t := TurnId{uuid: id, createdAt: time.Now().UTC()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&t); err != nil {
			return TurnId{}, err
		}
	}
	return t, nil
}

// UUID returns the required uuid component.
func (t TurnId) UUID() string { return t.uuid }

// SequenceNumber returns the optional sequence number.
func (t TurnId) SequenceNumber() (int64, bool) { return t.sequenceNumber, t.hasSequence }

// CampaignID returns the optional campaign id.
func (t TurnId) CampaignID() (string, bool) { return t.campaignID, t.hasCampaign }

// CustomName returns the optional custom name.
func (t TurnId) CustomName() (string, bool) { return t.customName, t.hasCustomName }

// CreatedAt returns the creation timestamp.
func (t TurnId) CreatedAt() time.Time { return t.createdAt }

// Short is a compact, human-friendly identifier: the custom name if present,
// else the first 8 hex characters of the uuid, optionally suffixed with the
// sequence number. It is unambiguous enough for log lines but is not
// guaranteed to round-trip every field — use Long/Parse for that.
func (t TurnId) Short() string {
	base := t.uuid[:8]
	if t.hasCustomName {
		base = t.customName
	}
	if t.hasSequence {
		return fmt.Sprintf("%s#%d", base, t.sequenceNumber)
	}
	return base
}

// Long renders the canonical, fully round-trippable string form.
func (t TurnId) Long() string {
	var b strings.Builder
	b.WriteString(t.uuid)
	b.WriteString(";created=")
	b.WriteString(t.createdAt.Format(time.RFC3339Nano))
	if t.hasSequence {
		fmt.Fprintf(&b, ";seq=%d", t.sequenceNumber)
	}
	if t.hasCampaign {
		b.WriteString(";campaign=" + t.campaignID)
	}
	if t.hasCustomName {
		b.WriteString(";name=" + t.customName)
	}
	return b.String()
}

// String implements fmt.Stringer using the long form.
func (t TurnId) String() string { return t.Long() }

// Equal reports whether two TurnIds carry identical field values.
func (t TurnId) Equal(other TurnId) bool {
	return t.uuid == other.uuid &&
		t.hasSequence == other.hasSequence && t.sequenceNumber == other.sequenceNumber &&
		t.hasCampaign == other.hasCampaign && t.campaignID == other.campaignID &&
		t.hasCustomName == other.hasCustomName && t.customName == other.customName &&
		t.createdAt.Equal(other.createdAt)
}

// Parse reconstructs a TurnId from its Long() form. parse(format(t)) == t
// for every valid TurnId.
func Parse(s string) (TurnId, error) {
	parts := strings.Split(s, ";")
	if len(parts) == 0 || parts[0] == "" {
		return TurnId{}, fmt.Errorf("turn id string is empty")
	}
	id := parts[0]
	if _, err := uuid.Parse(id); err != nil {
		return TurnId{}, fmt.Errorf("uuid component is invalid: %w", err)
	}
	t := TurnId{uuid: id}
	for _, kv := range parts[1:] {
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			return TurnId{}, fmt.Errorf("malformed component %q", kv)
		}
		key, value := kv[:eq], kv[eq+1:]
		switch key {
		case "created":
			parsed, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return TurnId{}, fmt.Errorf("created component is invalid: %w", err)
			}
			t.createdAt = parsed
		case "seq":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 1 {
				return TurnId{}, fmt.Errorf("seq component is invalid: %q", value)
			}
			t.sequenceNumber, t.hasSequence = n, true
		case "campaign":
			t.campaignID, t.hasCampaign = value, true
		case "name":
			if !customNamePattern.MatchString(value) {
				return TurnId{}, fmt.Errorf("name component is invalid: %q", value)
			}
			t.customName, t.hasCustomName = value, true
		default:
			return TurnId{}, fmt.Errorf("unknown component %q", key)
		}
	}
	return t, nil
}
