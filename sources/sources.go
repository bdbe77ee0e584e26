package sources

import (
	"sort"
	"strings"
)

// PriceSource identifies where a price observation came from, after
// canonicalization. The zero value is an unnamed, unranked source.
type PriceSource struct {
	Name string `json:"name"`
}

// Canonical source names produced by Translate.
const (
	Bloomberg = "BLOOMBERG"
	FTSE      = "FTSE"
	Markit    = "MARKIT"
	Fundrun   = "FUNDRUN"
	Override  = "OVERRIDE"
	Manual    = "MANUAL"
	APX       = "APX"
	RBC       = "RBC"
)

// RawAPX is the vendor feed name of the internal reference feed before
// translation. Price batches from this feed carry the previous business
// day's close and are shifted forward when applied to the read model.
const RawAPX = "PXAPX"

// Hierarchy is the precedence order used to choose among competing prices
// for one security and date. Earlier entries win. Sources absent from the
// list lose to every listed source.
var Hierarchy = []string{
	Override,
	Manual,
	Fundrun,
	FTSE,
	Markit,
	Bloomberg,
	RBC,
}

// Translate maps a raw vendor or internal feed name to its canonical
// source. Unmatched names pass through unchanged.
func Translate(raw string) PriceSource {
	switch {
	case strings.HasPrefix(raw, "BB_") && !strings.Contains(raw, "_DERIVED"):
		return PriceSource{Name: Bloomberg}
	case raw == "FTSETMX_PX":
		return PriceSource{Name: FTSE}
	case raw == "MARKIT_LOAN_CLEANPRICE":
		return PriceSource{Name: Markit}
	case raw == "FUNDRUN_EQUITY":
		return PriceSource{Name: Fundrun}
	case raw == "FIDESK_MANUALPRICE" || raw == "LW_OVERRIDE":
		return PriceSource{Name: Override}
	case raw == "FIDESK_MISSINGPRICE" || raw == "LW_MANUAL":
		return PriceSource{Name: Manual}
	case raw == RawAPX:
		return PriceSource{Name: APX}
	default:
		return PriceSource{Name: raw}
	}
}

// Rank returns the position of the source in the hierarchy. Lower is
// better. The second return is false for sources outside the hierarchy.
func Rank(s PriceSource) (int, bool) {
	for i, name := range Hierarchy {
		if s.Name == name {
			return i, true
		}
	}
	return len(Hierarchy), false
}

// ComparePrecedence orders two sources by precedence: negative when a wins,
// positive when b wins, zero when neither dominates. Ties between equal
// ranks, and between two unranked sources, resolve by lexicographic name so
// the outcome never depends on fetch order.
func ComparePrecedence(a, b PriceSource) int {
	ra, aRanked := Rank(a)
	rb, bRanked := Rank(b)
	switch {
	case aRanked && !bRanked:
		return -1
	case !aRanked && bRanked:
		return 1
	case ra != rb:
		return ra - rb
	default:
		return strings.Compare(a.Name, b.Name)
	}
}

// Registry holds the configured set of relevant source names. Prices from
// sources outside the set are silently dropped; that is an expected exit,
// not an error.
type Registry struct {
	relevant map[string]struct{}
}

// NewRegistry builds a registry from the vendor and lw allow-lists. Entries
// are trimmed; empty entries are ignored.
func NewRegistry(vendorSources, lwSources []string) *Registry {
	r := &Registry{relevant: make(map[string]struct{})}
	for _, name := range append(append([]string{}, vendorSources...), lwSources...) {
		name = strings.TrimSpace(name)
		if name != "" {
			r.relevant[name] = struct{}{}
		}
	}
	return r
}

func (r *Registry) IsRelevant(s PriceSource) bool {
	_, ok := r.relevant[s.Name]
	return ok
}

// RelevantNames returns the configured names in sorted order, for logging.
func (r *Registry) RelevantNames() []string {
	names := make([]string, 0, len(r.relevant))
	for name := range r.relevant {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
