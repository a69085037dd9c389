// Package importer holds institution-specific adjustments applied to
// transactions before they are imported into the ledger.
package importer

import (
	"strings"

	"github.com/cleared-dev/gcsync/internal/gocardless"
)

// Mapper adjusts the transactions of one institution.
type Mapper interface {
	// Institution returns the institution ID prefix the mapper handles.
	Institution() string
	// Map adjusts t in place. It returns false when t must not be imported.
	Map(t *gocardless.Transaction) bool
}

// Registry holds mappers keyed by institution ID prefix.
type Registry struct {
	mappers map[string]Mapper
}

// NewRegistry creates an empty mapper registry.
func NewRegistry() *Registry {
	return &Registry{mappers: make(map[string]Mapper)}
}

// Register adds a mapper. Panics on duplicate institution.
func (r *Registry) Register(m Mapper) {
	key := strings.ToUpper(m.Institution())
	if _, ok := r.mappers[key]; ok {
		panic("duplicate mapper institution: " + key)
	}
	r.mappers[key] = m
}

// Get returns the mapper whose prefix matches institutionID, or nil. The
// longest matching prefix wins.
func (r *Registry) Get(institutionID string) Mapper {
	id := strings.ToUpper(institutionID)
	var best Mapper
	bestLen := 0
	for prefix, m := range r.mappers {
		if strings.HasPrefix(id, prefix) && len(prefix) > bestLen {
			best, bestLen = m, len(prefix)
		}
	}
	return best
}

// Apply runs the mapper for institutionID over txns and returns the ones
// to import. Without a mapper txns are returned unchanged.
func (r *Registry) Apply(institutionID string, txns []gocardless.Transaction) []gocardless.Transaction {
	m := r.Get(institutionID)
	if m == nil {
		return txns
	}
	out := make([]gocardless.Transaction, 0, len(txns))
	for _, t := range txns {
		if m.Map(&t) {
			out = append(out, t)
		}
	}
	return out
}

// DefaultRegistry returns a registry with all built-in mappers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NordeaMapper{})
	r.Register(SRBankMapper{})
	return r
}

// NordeaMapper drops the "P" duplicates Nordea reports some time after the
// original "H" transaction.
type NordeaMapper struct{}

// Institution returns the Nordea institution prefix.
func (NordeaMapper) Institution() string { return "NORDEA_" }

// Map implements Mapper.
func (NordeaMapper) Map(t *gocardless.Transaction) bool {
	return !strings.HasPrefix(t.TransactionID, "P")
}

// SRBankMapper keys SpareBank 1 SR-Bank transactions on the proprietary
// bank transaction code, which unlike the transaction ID does not change.
type SRBankMapper struct{}

// Institution returns the SR-Bank institution ID.
func (SRBankMapper) Institution() string { return "SPAREBANK_SR_BANK_SPRONO22" }

// Map implements Mapper.
func (SRBankMapper) Map(t *gocardless.Transaction) bool {
	if t.ProprietaryCode != "" {
		t.TransactionID = t.ProprietaryCode
	}
	return true
}
