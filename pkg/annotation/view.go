package annotation

import "scriptboard/pkg/segment"

// View is one read of a script: its current lines and the annotations joined
// against them.
type View struct {
	DocumentID string
	Lines      []segment.Line
	Index      *Index
}

// Placement returns where each annotation is displayed for the current lines.
func (v *View) Placement() Placement {
	return v.Index.Place(len(v.Lines))
}

// Apply folds a confirmed write into the view. Document updates are not
// handled here: the script must be segmented again.
func (v *View) Apply(ev Event) {
	switch ev.Type {
	case EventAdded:
		if ev.Annotation != nil {
			v.Index.Insert(ev.Annotation)
		}
	case EventEdited:
		if ev.Annotation != nil && ev.Annotation.UpdatedAt != nil {
			v.Index.SetBody(ev.Annotation.ID, ev.Annotation.Body, *ev.Annotation.UpdatedAt)
		}
	case EventDeleted:
		v.Index.Remove(ev.ID)
	case EventLikeChanged:
		if ev.Like != nil {
			v.Index.ApplyLike(ev.ActorID, *ev.Like)
		}
	}
}
