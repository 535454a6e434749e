package payments

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReferenceGenerator builds <prefix>-P<property8>-U<student8>-<ms>. The millisecond
// component never repeats or goes backwards within a process.
type ReferenceGenerator struct {
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	last int64
}

func NewReferenceGenerator(prefix string, now func() time.Time) *ReferenceGenerator {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "CDIGS"
	}
	if now == nil {
		now = time.Now
	}
	return &ReferenceGenerator{prefix: prefix, now: now}
}

func (g *ReferenceGenerator) Next(propertyID, studentID uuid.UUID) string {
	g.mu.Lock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	g.mu.Unlock()

	return fmt.Sprintf("%s-P%s-U%s-%d", g.prefix, shortID(propertyID), shortID(studentID), ms)
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}

// ReferenceNamesStudent reports whether reference was generated for studentID.
func ReferenceNamesStudent(reference string, studentID uuid.UUID) bool {
	if studentID == uuid.Nil {
		return false
	}
	return strings.Contains(strings.ToUpper(reference), "-U"+shortID(studentID)+"-")
}
