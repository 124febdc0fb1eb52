// Package auxdata orchestrates auxiliary data CRUD: the natural-key upsert,
// data-array merging, events-side joins, and the FilePond image intake.
package auxdata

import "github.com/oceanlog/oceanlog/pkg/models"

// mergeDataArrays overlays stored items onto incoming ones. On a name
// collision the stored value and unit win; stored items the incoming array
// does not mention are appended. The result is the union of names with the
// incoming array's ordering first. Merging twice with the same inputs yields
// the same result.
func mergeDataArrays(stored, incoming []models.DataItem) []models.DataItem {
	out := make([]models.DataItem, len(incoming))
	copy(out, incoming)
	for _, st := range stored {
		found := false
		for i := range out {
			if out[i].Name == st.Name {
				out[i].Value = st.Value
				out[i].UOM = st.UOM
				found = true
				break
			}
		}
		if !found {
			out = append(out, st)
		}
	}
	return out
}
