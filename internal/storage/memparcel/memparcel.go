// Package memparcel keeps identities, shipments and notifications in process
// memory. Every mutation happens under one lock, so a shipment (events
// included) is updated all-or-nothing just like a single-row UPDATE.
package memparcel

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/ParcelTrack/internal/models"
)

type Storage struct {
	mu sync.RWMutex

	seq int64

	users         map[string]*userRec
	partners      map[string]*partnerRec
	shipments     map[string]*shipmentRec // by tracking number
	notifications map[string]*notificationRec
}

type userRec struct {
	seq int64
	u   *models.User
}

type partnerRec struct {
	seq int64
	p   *models.Partner
}

type shipmentRec struct {
	seq int64
	s   *models.Shipment
}

type notificationRec struct {
	seq int64
	n   *models.Notification
}

func New() *Storage {
	return &Storage{
		users:         map[string]*userRec{},
		partners:      map[string]*partnerRec{},
		shipments:     map[string]*shipmentRec{},
		notifications: map[string]*notificationRec{},
	}
}

func (s *Storage) Close() {}

func (s *Storage) nextSeq() int64 {
	s.seq++
	return s.seq
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

// newestFirst sorts by createdAt desc, then by insertion order desc.
func newestFirst[T any](items []T, createdAt func(T) time.Time, seq func(T) int64) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := createdAt(items[i]), createdAt(items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return seq(items[i]) > seq(items[j])
	})
}

func paginate[T any](items []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := min(start+limit, len(items))
	return items[start:end]
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
