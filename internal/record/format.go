package record

import (
	"fmt"

	"github.com/caesium-cloud/sweep/internal/store"
)

// Format is the column contract of a fixed-width output file.
type Format struct {
	Name    string
	Columns []store.Column
}

// Width is the number of whitespace separated fields per line.
func (f Format) Width() int {
	return len(f.Columns)
}

// Names returns the column names in file order.
func (f Format) Names() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// Lookup returns a built-in format by name.
func Lookup(name string) (Format, error) {
	switch name {
	case Fort10.Name:
		return Fort10, nil
	default:
		return Format{}, fmt.Errorf("unknown record format %q", name)
	}
}

func columns(typ store.ColumnType, names ...string) []store.Column {
	cols := make([]store.Column, len(names))
	for i, n := range names {
		cols[i] = store.Column{Name: n, Type: typ}
	}
	return cols
}

func concat(groups ...[]store.Column) []store.Column {
	var out []store.Column
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Fort10 is the 60 column tracking summary written once per particle
// pair by the tracking stage.
var Fort10 = Format{
	Name: "fort10",
	Columns: concat(
		columns(store.Integer, "turn_max", "sflag"),
		columns(store.Real, "qx", "qy", "betx", "bety", "sigx1", "sigy1",
			"deltap", "dist", "distp", "qx_det", "qx_spread", "qy_det",
			"qy_spread", "resxfact", "resyfact"),
		columns(store.Integer, "resorder"),
		columns(store.Real, "smearx", "smeary", "smeart"),
		columns(store.Integer, "sturns1", "sturns2"),
		columns(store.Real, "sseed", "qs", "sigx2", "sigy2",
			"sigxmin", "sigxavg", "sigxmax", "sigymin", "sigyavg", "sigymax",
			"sigxminld", "sigxavgld", "sigxmaxld", "sigyminld", "sigyavgld", "sigymaxld",
			"sigxminnld", "sigxavgnld", "sigxmaxnld", "sigyminnld", "sigyavgnld", "sigymaxnld",
			"emitx", "emity", "betx2", "bety2", "qpx", "qpy", "version",
			"cx", "cy", "csigma", "xp", "yp", "delta", "dnms", "trttime"),
	),
}
