package domain

// ControlNetProfile is a catalog entry describing how a guide image
// conditions generation.
type ControlNetProfile struct {
	Type          int
	TypeName      string
	Text          string
	IsSelected    bool
	GuidanceStart float64
	GuidanceEnd   float64
	Model         string
	Module        string
	Weight        float64
}

// Label renders the display text used by the type listing, e.g. "Canny(edges)".
func (p ControlNetProfile) Label() string {
	return p.TypeName + "(" + p.Text + ")"
}
