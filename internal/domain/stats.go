package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrRegionsNeedWeights mirrors the rule that basin reductions are only
// defined for area-weighted means.
var ErrRegionsNeedWeights = errors.New("region masks can only be applied if weights are provided")

// Region is a named horizontal mask; cells with a non-zero mask value belong
// to the region.
type Region struct {
	Name string
	Mask *Field
}

// HorizontalMeanDiff returns the weighted horizontal mean of a difference
// field (model - obs). With nil weights the plain mean is used. NaN cells
// and zero weights are excluded; the result is NaN when nothing remains.
func HorizontalMeanDiff(diff, weights *Field) (float64, error) {
	x, w, err := collect(diff, weights, nil)
	if err != nil {
		return 0, err
	}
	if len(x) == 0 {
		return math.NaN(), nil
	}
	return stat.Mean(x, w), nil
}

// HorizontalMeanRMSE returns the weighted horizontal root-mean-square of a
// difference field.
func HorizontalMeanRMSE(diff, weights *Field) (float64, error) {
	x, w, err := collect(diff, weights, nil)
	if err != nil {
		return 0, err
	}
	if len(x) == 0 {
		return math.NaN(), nil
	}
	for k, v := range x {
		x[k] = v * v
	}
	return math.Sqrt(stat.Mean(x, w)), nil
}

// RegionStats is the bias and RMSE of a difference field over one region.
type RegionStats struct {
	Region string  `json:"region"`
	Bias   float64 `json:"bias"`
	RMSE   float64 `json:"rmse"`
}

// RegionalStats computes bias and RMSE per region. Weights are required.
func RegionalStats(diff, weights *Field, regions []Region) ([]RegionStats, error) {
	if len(regions) == 0 {
		return nil, nil
	}
	if weights == nil {
		return nil, ErrRegionsNeedWeights
	}
	out := make([]RegionStats, 0, len(regions))
	for _, r := range regions {
		x, w, err := collect(diff, weights, r.Mask)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", r.Name, err)
		}
		rs := RegionStats{Region: r.Name, Bias: math.NaN(), RMSE: math.NaN()}
		if len(x) > 0 {
			rs.Bias = stat.Mean(x, w)
			sq := make([]float64, len(x))
			for k, v := range x {
				sq[k] = v * v
			}
			rs.RMSE = math.Sqrt(stat.Mean(sq, w))
		}
		out = append(out, rs)
	}
	return out, nil
}

// collect gathers the usable (value, weight) pairs. A nil weights field
// yields nil weights, which stat.Mean treats as uniform.
func collect(diff, weights, mask *Field) ([]float64, []float64, error) {
	if weights != nil && !diff.SameShape(weights) {
		return nil, nil, fmt.Errorf("weights shape [%d, %d] does not match data [%d, %d]",
			weights.NY, weights.NX, diff.NY, diff.NX)
	}
	if mask != nil && !diff.SameShape(mask) {
		return nil, nil, fmt.Errorf("region mask shape [%d, %d] does not match data [%d, %d]",
			mask.NY, mask.NX, diff.NY, diff.NX)
	}
	var x, w []float64
	for k, v := range diff.Data {
		if math.IsNaN(v) {
			continue
		}
		if mask != nil && (mask.Data[k] == 0 || math.IsNaN(mask.Data[k])) {
			continue
		}
		if weights != nil {
			wk := weights.Data[k]
			if wk == 0 || math.IsNaN(wk) {
				continue
			}
			w = append(w, wk)
		}
		x = append(x, v)
	}
	return x, w, nil
}

// RegionsFromCodes builds region masks from an integer basin-code field.
// Each definition lists the codes belonging to the region; an empty list
// selects every cell with a non-zero code. Regions are returned sorted by
// name.
func RegionsFromCodes(codes *Field, defs map[string][]int) []Region {
	names := make([]string, 0, len(defs))
	for n := range defs {
		names = append(names, n)
	}
	sort.Strings(names)

	regions := make([]Region, 0, len(names))
	for _, name := range names {
		want := make(map[int]bool, len(defs[name]))
		for _, c := range defs[name] {
			want[c] = true
		}
		mask := ZerosLike(codes)
		for k, v := range codes.Data {
			if math.IsNaN(v) {
				continue
			}
			code := int(math.Round(v))
			if (len(want) == 0 && code != 0) || want[code] {
				mask.Data[k] = 1
			}
		}
		regions = append(regions, Region{Name: name, Mask: mask})
	}
	return regions
}
