package family

// Count is the number of households carrying one label.
type Count struct {
	Structure   Structure `json:"structure"`
	Description string    `json:"description"`
	Households  int       `json:"households"`
	Share       float64   `json:"share"`
}

// Distribution is a label tally in the order of Structures. Labels outside the
// seven known codes are appended after them in first-seen order.
type Distribution struct {
	Total  int     `json:"total"`
	Counts []Count `json:"counts"`
}

// Tally counts labels. Empty labels are ignored.
func Tally(labels []Structure) Distribution {
	counts := make(map[Structure]int, len(Structures))
	var extra []Structure
	total := 0
	for _, l := range labels {
		if l == "" {
			continue
		}
		if _, seen := counts[l]; !seen && !l.Known() {
			extra = append(extra, l)
		}
		counts[l]++
		total++
	}

	dist := Distribution{Total: total}
	for _, s := range append(append([]Structure(nil), Structures...), extra...) {
		n := counts[s]
		share := 0.0
		if total > 0 {
			share = float64(n) / float64(total)
		}
		dist.Counts = append(dist.Counts, Count{
			Structure:   s,
			Description: s.Description(),
			Households:  n,
			Share:       share,
		})
	}
	return dist
}

// Get returns the count for one label.
func (d Distribution) Get(s Structure) int {
	for _, c := range d.Counts {
		if c.Structure == s {
			return c.Households
		}
	}
	return 0
}

// Known reports whether s is one of the seven labels.
func (s Structure) Known() bool {
	_, ok := descriptions[s]
	return ok
}
