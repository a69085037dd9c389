package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cleared-dev/gcsync/internal/gocardless"
)

func TestRegistry_Get(t *testing.T) {
	r := DefaultRegistry()

	assert.IsType(t, NordeaMapper{}, r.Get("NORDEA_NDEANOKK"))
	assert.IsType(t, NordeaMapper{}, r.Get("nordea_ndeafihh"))
	assert.IsType(t, SRBankMapper{}, r.Get("SPAREBANK_SR_BANK_SPRONO22"))
	assert.Nil(t, r.Get("DNB_DNBANOKK"))
	assert.Nil(t, r.Get(""))
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(NordeaMapper{})
	assert.Panics(t, func() { r.Register(NordeaMapper{}) })
}

func TestApply(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name        string
		institution string
		in          []gocardless.Transaction
		wantIDs     []string
	}{
		{
			name:        "nordea drops P duplicates",
			institution: "NORDEA_NDEANOKK",
			in:          []gocardless.Transaction{{TransactionID: "H123"}, {TransactionID: "P123"}, {TransactionID: ""}},
			wantIDs:     []string{"H123", ""},
		},
		{
			name:        "sr-bank uses proprietary code",
			institution: "SPAREBANK_SR_BANK_SPRONO22",
			in:          []gocardless.Transaction{{TransactionID: "t1", ProprietaryCode: "code-1"}, {TransactionID: "t2"}},
			wantIDs:     []string{"code-1", "t2"},
		},
		{
			name:        "unknown institution unchanged",
			institution: "DNB_DNBANOKK",
			in:          []gocardless.Transaction{{TransactionID: "P1"}},
			wantIDs:     []string{"P1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Apply(tt.institution, tt.in)
			ids := make([]string, len(out))
			for i, txn := range out {
				ids[i] = txn.TransactionID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}
