package query

// DefaultPinnedTitle is the display title of the synthetic pinned section.
const DefaultPinnedTitle = "Pinned"

// PinnedSectionKey identifies the pinned section. Category titles are never
// empty, so it cannot collide with a category section.
const PinnedSectionKey = ""

// Section is a run of rows sharing a section key.
type Section struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// SectionKey returns the key r is grouped under.
func SectionKey(r Row) string {
	if r.Tracker.IsPinned {
		return PinnedSectionKey
	}
	return r.CategoryTitle
}

// Sections groups rows sorted with Less into sections. Pinned trackers form
// the first section, titled pinnedTitle (DefaultPinnedTitle when empty).
func Sections(rows []Row, pinnedTitle string) []Section {
	if pinnedTitle == "" {
		pinnedTitle = DefaultPinnedTitle
	}
	var out []Section
	for _, r := range rows {
		key := SectionKey(r)
		if n := len(out); n > 0 && out[n-1].Key == key {
			out[n-1].Rows = append(out[n-1].Rows, r)
			continue
		}
		title := r.CategoryTitle
		if key == PinnedSectionKey {
			title = pinnedTitle
		}
		out = append(out, Section{Key: key, Title: title, Rows: []Row{r}})
	}
	return out
}
