package models

// Profile holds the tunable vocabulary of one report type. The zero value of
// any field means "use the built-in default".
type Profile struct {
	NoiseTerms       []string `yaml:"noise_terms"`  // matched against patient names
	HeaderTerms      []string `yaml:"header_terms"` // matched against whole lines
	Specialties      []string `yaml:"specialties"`
	Groups           []string `yaml:"groups"`
	InversionMarkers []string `yaml:"inversion_markers"`
	JunkFragments    []string `yaml:"junk_fragments"`
	NameWindow       XWindow  `yaml:"name_window"`
	StopLabelMaxX    float64  `yaml:"stop_label_max_x"`
	RowGap           float64  `yaml:"row_gap"`
	KeepPrefix       bool     `yaml:"keep_prefix"`
	SkipPages        []int    `yaml:"skip_pages"`
	Engine           Engine   `yaml:"engine"`
}

// XWindow is a horizontal column boundary for layout parsing.
type XWindow struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether x lies inside the window.
func (w XWindow) Contains(x float64) bool {
	return x >= w.Min && x <= w.Max
}

// IsZero reports whether the window was left unset.
func (w XWindow) IsZero() bool {
	return w.Min == 0 && w.Max == 0
}

// Merge returns p with every unset field filled from def.
func (p Profile) Merge(def Profile) Profile {
	out := p
	if len(out.NoiseTerms) == 0 {
		out.NoiseTerms = def.NoiseTerms
	}
	if len(out.HeaderTerms) == 0 {
		out.HeaderTerms = def.HeaderTerms
	}
	if len(out.Specialties) == 0 {
		out.Specialties = def.Specialties
	}
	if len(out.Groups) == 0 {
		out.Groups = def.Groups
	}
	if len(out.InversionMarkers) == 0 {
		out.InversionMarkers = def.InversionMarkers
	}
	if len(out.JunkFragments) == 0 {
		out.JunkFragments = def.JunkFragments
	}
	if out.NameWindow.IsZero() {
		out.NameWindow = def.NameWindow
	}
	if out.StopLabelMaxX == 0 {
		out.StopLabelMaxX = def.StopLabelMaxX
	}
	if out.RowGap == 0 {
		out.RowGap = def.RowGap
	}
	if !out.KeepPrefix {
		out.KeepPrefix = def.KeepPrefix
	}
	if len(out.SkipPages) == 0 {
		out.SkipPages = def.SkipPages
	}
	if out.Engine == EngineAuto {
		out.Engine = def.Engine
	}
	return out
}
