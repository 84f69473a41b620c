package predictor

import "fmt"

// MinMaxScaler rescales each feature column to [0, 1] over the fitted
// range. Columns with zero range collapse to 0.
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

func (s *MinMaxScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("cannot fit scaler on empty data")
	}

	dim := len(rows[0])
	s.Min = make([]float64, dim)
	s.Max = make([]float64, dim)
	copy(s.Min, rows[0])
	copy(s.Max, rows[0])

	for _, row := range rows[1:] {
		for j, v := range row {
			if v < s.Min[j] {
				s.Min[j] = v
			}
			if v > s.Max[j] {
				s.Max[j] = v
			}
		}
	}
	return nil
}

func (s *MinMaxScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		span := s.Max[j] - s.Min[j]
		if span == 0 {
			out[j] = 0
			continue
		}
		out[j] = (v - s.Min[j]) / span
	}
	return out
}

func (s *MinMaxScaler) TransformAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = s.Transform(row)
	}
	return out
}

// InverseColumn maps a scaled value of one column back to its original
// units.
func (s *MinMaxScaler) InverseColumn(col int, v float64) float64 {
	return v*(s.Max[col]-s.Min[col]) + s.Min[col]
}
