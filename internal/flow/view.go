package flow

import "github.com/campusquest/companion/internal/campus"

// View is the JSON snapshot of a session handed to the UI. The
// verification secret never leaves the companion.
type View struct {
	ID        string                 `json:"id"`
	State     State                  `json:"state"`
	Challenge string                 `json:"challenge"`
	Variant   Variant                `json:"variant"`
	Location  *campus.LocationSample `json:"location,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Corners   *[4]campus.Point       `json:"corners,omitempty"`
	Image     string                 `json:"image,omitempty"`
	Editing   *campus.Transform      `json:"editing,omitempty"`
	Note      string                 `json:"note"`
	Error     string                 `json:"error,omitempty"`
	Completed bool                   `json:"completed"`
}

func (s *Session) viewLocked() View {
	m := s.model
	v := View{
		ID:        s.ID,
		State:     m.State,
		Challenge: m.Challenge.Name,
		Variant:   m.Variant,
		Location:  m.Location,
		Note:      m.Note,
		Error:     m.Error,
		Completed: m.Completed,
	}
	if m.Scan != nil {
		v.Code = m.Scan.Text
		corners := m.Scan.Corners
		v.Corners = &corners
	}
	if m.Image != nil {
		v.Image = m.Image.Final()
	}
	if s.editor != nil {
		t := s.editor.Transform()
		v.Editing = &t
	}
	return v
}
