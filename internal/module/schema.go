package module

import "fmt"

// DataType is the storage type of a variable, named after the container types
// the upstream stages write.
type DataType string

const (
	Float64 DataType = "f8"
	Int32   DataType = "i4"
	Char    DataType = "S1"
)

// ParseDataType validates a data type tag.
func ParseDataType(raw string) (DataType, error) {
	switch dt := DataType(raw); dt {
	case Float64, Int32, Char:
		return dt, nil
	default:
		return "", fmt.Errorf("unsupported data type %q", raw)
	}
}

// VariableSpec declares one baseline variable of a stage. Series variables
// carry one value per time step for every identifier.
type VariableSpec struct {
	Name   string
	Type   DataType
	Series bool
}

func scalar(name string) VariableSpec { return VariableSpec{Name: name, Type: Float64} }
func series(name string) VariableSpec { return VariableSpec{Name: name, Type: Float64, Series: true} }

var schemas = map[Name][]VariableSpec{
	Hivdi:    {series("Q"), scalar("A0"), scalar("alpha"), scalar("beta")},
	Metroman: {series("allq"), series("q_u"), scalar("A0hat"), scalar("nahat"), scalar("x1hat")},
	Moi:      {series("q"), scalar("qbar_reachScale"), scalar("qbar_basinScale")},
	Momma:    {series("Q"), series("Y"), series("n"), scalar("bankfull_stage"), scalar("Qmean_prior"), scalar("Qmean_momma")},
	Neobam:   {series("q"), scalar("r_mean"), scalar("r_sd"), scalar("logn_mean"), scalar("logn_sd")},
	Offline: {
		series("d_x_area"), series("d_x_area_u"),
		series("metro_q_c"), series("metro_q_uc"),
		series("bam_q_c"), series("bam_q_uc"),
		series("hivdi_q_c"), series("hivdi_q_uc"),
		series("momma_q_c"), series("momma_q_uc"),
		series("sads_q_c"), series("sads_q_uc"),
		series("consensus_q_c"), series("consensus_q_uc"),
	},
	Prediagnostics: {series("ice_clim_f"), series("dark_frac"), series("xtrk_dist")},
	Priors:         {scalar("qbar"), scalar("qhv"), scalar("qsd")},
	Sad:            {series("Qa"), series("Q_u"), scalar("A0"), scalar("n")},
	Sic4dvar:       {series("Qalgo5"), series("Qalgo31"), scalar("A0"), scalar("n")},
	Swot:           {series("wse"), series("width"), series("slope2"), series("d_x_area")},
	Validation: {
		{Name: "has_validation", Type: Int32},
		scalar("nse"), scalar("rsq"), scalar("kge"), scalar("rmse"), scalar("testn"),
	},
}

// Schema returns the baseline variables of n in declaration order.
func Schema(n Name) []VariableSpec {
	specs := schemas[n]
	out := make([]VariableSpec, len(specs))
	copy(out, specs)
	return out
}

// Lookup finds a baseline variable of n by name.
func Lookup(n Name, variable string) (VariableSpec, bool) {
	for _, spec := range schemas[n] {
		if spec.Name == variable {
			return spec, true
		}
	}
	return VariableSpec{}, false
}
