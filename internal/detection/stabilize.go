package detection

import "sort"

// categoryWinner tracks the best sighting of one category across the window
// and which list it came from.
type categoryWinner struct {
	det        Detection
	deficiency bool
}

// Stabilize merges the retained window into one steady result. Non-list
// fields always come from the latest sample, since that reflects the present
// frame best. The detection lists are deduplicated by lowercased category,
// keeping the highest-confidence sighting seen anywhere in the window, with
// diseases and deficiencies considered together; the merged lists are sorted
// by confidence descending.
//
// An empty history yields nil; a single-entry history returns that entry
// verbatim.
func Stabilize(h *History) *Result {
	if h == nil || h.Len() == 0 {
		return nil
	}
	if h.Len() == 1 {
		return h.Latest()
	}

	latest := h.Latest()
	merged := *latest

	best := make(map[string]categoryWinner)
	consider := func(d Detection, deficiency bool) {
		key := d.Key()
		if w, ok := best[key]; !ok || d.Confidence > w.det.Confidence {
			best[key] = categoryWinner{det: d, deficiency: deficiency}
		}
	}

	for _, res := range h.Entries() {
		for _, d := range res.Diseases {
			consider(d, false)
		}
		for _, d := range res.Deficiencies {
			consider(d, true)
		}
	}

	var diseases, deficiencies []Detection
	for _, w := range best {
		if w.deficiency {
			deficiencies = append(deficiencies, w.det)
		} else {
			diseases = append(diseases, w.det)
		}
	}

	byConfidenceDesc := func(dets []Detection) {
		sort.SliceStable(dets, func(i, j int) bool {
			return dets[i].Confidence > dets[j].Confidence
		})
	}
	byConfidenceDesc(diseases)
	byConfidenceDesc(deficiencies)

	merged.Diseases = diseases
	merged.Deficiencies = deficiencies
	return &merged
}
