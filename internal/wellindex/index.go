// Package wellindex resolves free-text well identifiers from field
// spreadsheets against the well registry. Pumpers write whatever is on the
// sign at the lease, so resolution has to tolerate case, whitespace and
// dash differences across well numbers, names and alternates.
package wellindex

import (
	"strings"

	"github.com/caprock/fieldbook/internal/models"
)

type Index struct {
	byNumber        map[string]*models.Well
	byNumberNorm    map[string]*models.Well
	byName          map[string]*models.Well
	byNameNorm      map[string]*models.Well
	bySecondary     map[string]*models.Well
	bySecondaryNorm map[string]*models.Well
	crossNorm       map[string]*models.Well
}

// Normalize case-folds an identifier and strips the separators that vary
// between the registry and hand-typed sheets.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '-', '_':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func New(wells []models.Well) *Index {
	ix := &Index{
		byNumber:        make(map[string]*models.Well),
		byNumberNorm:    make(map[string]*models.Well),
		byName:          make(map[string]*models.Well),
		byNameNorm:      make(map[string]*models.Well),
		bySecondary:     make(map[string]*models.Well),
		bySecondaryNorm: make(map[string]*models.Well),
		crossNorm:       make(map[string]*models.Well),
	}

	put := func(m map[string]*models.Well, key string, w *models.Well) {
		if key == "" {
			return
		}
		if _, exists := m[key]; !exists {
			m[key] = w
		}
	}

	for i := range wells {
		w := &wells[i]
		put(ix.byNumber, w.WellNumber, w)
		put(ix.byNumberNorm, Normalize(w.WellNumber), w)
		// Alternate API identifiers resolve through the number maps.
		put(ix.byNumber, w.APIAlt, w)
		put(ix.byNumberNorm, Normalize(w.APIAlt), w)

		put(ix.byName, w.Name, w)
		put(ix.byNameNorm, Normalize(w.Name), w)
		put(ix.bySecondary, w.SecondaryName, w)
		put(ix.bySecondaryNorm, Normalize(w.SecondaryName), w)

		put(ix.crossNorm, Normalize(w.Name), w)
		put(ix.crossNorm, Normalize(w.SecondaryName), w)
		put(ix.crossNorm, Normalize(w.WellNumber), w)
		put(ix.crossNorm, Normalize(w.APIAlt), w)
	}
	return ix
}

// Resolve tries each lookup in order of decreasing confidence and returns
// the first hit. A miss is a reportable condition, not an error: the caller
// skips the row and records it.
func (ix *Index) Resolve(ref string) (*models.Well, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, false
	}
	norm := Normalize(ref)

	if w, ok := ix.byNumber[ref]; ok {
		return w, true
	}
	if w, ok := ix.byNumberNorm[norm]; ok {
		return w, true
	}
	if w, ok := ix.byName[ref]; ok {
		return w, true
	}
	if w, ok := ix.byNameNorm[norm]; ok {
		return w, true
	}
	if w, ok := ix.bySecondary[ref]; ok {
		return w, true
	}
	if w, ok := ix.bySecondaryNorm[norm]; ok {
		return w, true
	}
	if w, ok := ix.crossNorm[norm]; ok {
		return w, true
	}
	return nil, false
}
