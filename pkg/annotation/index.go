package annotation

import (
	"sort"
	"time"
)

// Index groups the annotations of one script by line. It is built once per
// read and then only follows writes that the store has confirmed.
type Index struct {
	byLine map[int][]*Annotation
	byID   map[string]*Annotation
}

// Build groups annotations by line index, oldest first within a line.
func Build(annotations []*Annotation) *Index {
	sorted := make([]*Annotation, len(annotations))
	copy(sorted, annotations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	ix := &Index{
		byLine: make(map[int][]*Annotation),
		byID:   make(map[string]*Annotation, len(sorted)),
	}
	for _, a := range sorted {
		ix.byLine[a.LineIndex] = append(ix.byLine[a.LineIndex], a)
		ix.byID[a.ID] = a
	}
	return ix
}

// CountFor returns how many annotations target line i.
func (ix *Index) CountFor(i int) int {
	return len(ix.byLine[i])
}

// ListFor returns the annotations targeting line i, oldest first.
func (ix *Index) ListFor(i int) []*Annotation {
	if list := ix.byLine[i]; list != nil {
		return list
	}
	return []*Annotation{}
}

// ListRange returns the annotations of every line in [start, end], in line order.
func (ix *Index) ListRange(start, end int) []*Annotation {
	out := []*Annotation{}
	for i := start; i <= end; i++ {
		out = append(out, ix.byLine[i]...)
	}
	return out
}

// All returns every annotation in line order, oldest first within a line.
func (ix *Index) All() []*Annotation {
	lines := make([]int, 0, len(ix.byLine))
	for i := range ix.byLine {
		lines = append(lines, i)
	}
	sort.Ints(lines)
	out := make([]*Annotation, 0, len(ix.byID))
	for _, i := range lines {
		out = append(out, ix.byLine[i]...)
	}
	return out
}

// Len returns the number of indexed annotations.
func (ix *Index) Len() int {
	return len(ix.byID)
}

// Get looks an annotation up by id.
func (ix *Index) Get(id string) (*Annotation, bool) {
	a, ok := ix.byID[id]
	return a, ok
}

// Insert adds a newly created annotation at the end of its line.
func (ix *Index) Insert(a *Annotation) {
	if _, ok := ix.byID[a.ID]; ok {
		return
	}
	ix.byID[a.ID] = a
	ix.byLine[a.LineIndex] = append(ix.byLine[a.LineIndex], a)
}

// SetBody records a confirmed edit.
func (ix *Index) SetBody(id, body string, updatedAt time.Time) {
	if a, ok := ix.byID[id]; ok {
		a.Body = body
		a.UpdatedAt = &updatedAt
	}
}

// Remove drops a deleted annotation.
func (ix *Index) Remove(id string) {
	a, ok := ix.byID[id]
	if !ok {
		return
	}
	delete(ix.byID, id)
	list := ix.byLine[a.LineIndex]
	for i, b := range list {
		if b.ID == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(ix.byLine, a.LineIndex)
	} else {
		ix.byLine[a.LineIndex] = list
	}
}

// ApplyLike records a confirmed like toggle made by userID; st is from that
// user's point of view. LikedByViewer is left as it was loaded.
func (ix *Index) ApplyLike(userID string, st LikeState) {
	a, ok := ix.byID[st.AnnotationID]
	if !ok {
		return
	}
	a.LikesCount = st.LikesCount
	likers := make([]string, 0, len(a.Likers)+1)
	for _, u := range a.Likers {
		if u != userID {
			likers = append(likers, u)
		}
	}
	if st.LikedByViewer {
		likers = append(likers, userID)
	}
	a.Likers = likers
}

// Orphans returns the annotations whose line no longer exists in a script of
// lineCount lines, in line then creation order.
func (ix *Index) Orphans(lineCount int) []*Annotation {
	lines := make([]int, 0)
	for i := range ix.byLine {
		if i >= lineCount || i < 0 {
			lines = append(lines, i)
		}
	}
	sort.Ints(lines)
	out := []*Annotation{}
	for _, i := range lines {
		out = append(out, ix.byLine[i]...)
	}
	return out
}

// Placement is where annotations are displayed for a script of a given
// length. Orphans follow the last line's own annotations; with no lines at
// all they are kept aside in Unplaced.
type Placement struct {
	ByLine   map[int][]*Annotation
	Orphaned int
	Unplaced []*Annotation
}

// For returns the annotations displayed at line i.
func (p Placement) For(i int) []*Annotation {
	if list := p.ByLine[i]; list != nil {
		return list
	}
	return []*Annotation{}
}

// Place computes the display placement for a script of lineCount lines.
func (ix *Index) Place(lineCount int) Placement {
	p := Placement{ByLine: make(map[int][]*Annotation), Unplaced: []*Annotation{}}
	for i, list := range ix.byLine {
		if i >= 0 && i < lineCount {
			p.ByLine[i] = append(p.ByLine[i], list...)
		}
	}
	orphans := ix.Orphans(lineCount)
	p.Orphaned = len(orphans)
	if len(orphans) == 0 {
		return p
	}
	if lineCount == 0 {
		p.Unplaced = orphans
		return p
	}
	last := lineCount - 1
	p.ByLine[last] = append(p.ByLine[last], orphans...)
	return p
}
