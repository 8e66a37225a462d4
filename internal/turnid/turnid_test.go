package turnid_test

import (
	"testing"

	"github.com/marcus-qen/turnengine/internal/turnid"
)

func TestRoundTripLongForm(t *testing.T) {
	cases := []struct {
		name string
		opts []turnid.Option
	}{
		{name: "bare uuid"},
		{name: "with sequence", opts: []turnid.Option{turnid.WithSequenceNumber(7)}},
		{name: "with campaign", opts: []turnid.Option{turnid.WithCampaignID("camp-1")}},
		{name: "with custom name", opts: []turnid.Option{turnid.WithCustomName("nightly-run")}},
		{name: "fully decorated", opts: []turnid.Option{
			turnid.WithSequenceNumber(42),
			turnid.WithCampaignID("camp-2"),
			turnid.WithCustomName("soak_test_01"),
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := turnid.New(tc.opts...)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			parsed, err := turnid.Parse(id.Long())
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", id.Long(), err)
			}
			if !id.Equal(parsed) {
				t.Fatalf("round trip mismatch: %+v != %+v", id, parsed)
			}
		})
	}
}

func TestCustomNameRejectsReservedWords(t *testing.T) {
	for _, reserved := range []string{"test", "Debug", "SYSTEM", "admin", "root", "api"} {
		if _, err := turnid.New(turnid.WithCustomName(reserved)); err == nil {
			t.Errorf("expected reserved name %q to be rejected", reserved)
		}
	}
}

func TestCustomNameRejectsBadPattern(t *testing.T) {
	for _, bad := range []string{"", "has space", "has/slash", "toolong" + string(make([]byte, 60))} {
		if _, err := turnid.New(turnid.WithCustomName(bad)); err == nil {
			t.Errorf("expected pattern rejection for %q", bad)
		}
	}
}

func TestSequenceNumberMustBePositive(t *testing.T) {
	if _, err := turnid.New(turnid.WithSequenceNumber(0)); err == nil {
		t.Error("expected sequence_number=0 to be rejected")
	}
	if _, err := turnid.New(turnid.WithSequenceNumber(-1)); err == nil {
		t.Error("expected negative sequence_number to be rejected")
	}
}

func TestFromUUIDRejectsInvalidUUID(t *testing.T) {
	if _, err := turnid.FromUUID("not-a-uuid"); err == nil {
		t.Error("expected invalid uuid to be rejected")
	}
}
