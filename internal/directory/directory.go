// Package directory caches the latest reconciled record per ticket. It is
// not a source of truth and can be dropped and rebuilt at any time.
package directory

import (
	"sort"
	"sync"

	"github.com/ledgerdesk/ledgerdesk/internal/domain"
)

// Predicate selects records in List.
type Predicate func(rec *domain.TicketRecord) bool

// Directory maps ticket ID to its latest record. Stored records are never
// mutated; Upsert swaps the whole record.
type Directory struct {
	mu      sync.RWMutex
	records map[string]*domain.TicketRecord
}

// New creates an empty Directory.
func New() *Directory {
	return &Directory{records: make(map[string]*domain.TicketRecord)}
}

// Upsert stores rec under id unless the cached record is fresher. Freshness
// is the ledger sequence the record reflects, not arrival order. It reports
// whether rec was stored.
func (d *Directory) Upsert(id string, rec *domain.TicketRecord) bool {
	if rec == nil || id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if current, ok := d.records[id]; ok && !supersedes(rec, current) {
		return false
	}
	d.records[id] = rec
	return true
}

// supersedes reports whether next should replace current.
func supersedes(next, current *domain.TicketRecord) bool {
	if next.Version != current.Version {
		return next.Version > current.Version
	}
	if next.State != current.State {
		return next.State == domain.RecordComplete
	}
	// A backfilled gap adds events without moving the version.
	if len(next.Events) != len(current.Events) {
		return len(next.Events) > len(current.Events)
	}
	// Same ledger view: keep whichever has resolved more content.
	return next.PendingContent() <= current.PendingContent()
}

// Get returns the cached record for id.
func (d *Directory) Get(id string) (*domain.TicketRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[id]
	return rec, ok
}

// List returns the records matching pred, newest ticket first. A nil pred
// matches everything.
func (d *Directory) List(pred Predicate) []*domain.TicketRecord {
	d.mu.RLock()
	out := make([]*domain.TicketRecord, 0, len(d.records))
	for _, rec := range d.records {
		if pred == nil || pred(rec) {
			out = append(out, rec)
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Len returns the number of cached tickets.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Stats counts records per status. Every status is present in the result.
func (d *Directory) Stats() map[domain.TicketStatus]int {
	out := make(map[domain.TicketStatus]int, 4)
	for _, status := range domain.AllStatuses() {
		out[status] = 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, rec := range d.records {
		if rec.State == domain.RecordComplete {
			out[rec.Status]++
		}
	}
	return out
}
