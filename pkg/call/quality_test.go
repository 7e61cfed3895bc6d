package call

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		loss    float64
		bitrate float64
		want    Tier
	}{
		{0.2, 800, QualityExcellent},
		{0.9, 501, QualityExcellent},
		{0.5, 500, QualityGood}, // bitrate on the boundary drops a tier
		{1, 800, QualityGood},
		{2.9, 301, QualityGood},
		{3, 301, QualityFair},
		{4.9, 201, QualityFair},
		{4.9, 200, QualityPoor},
		{5, 1000, QualityPoor},
		{0, 0, QualityPoor},
	}
	for _, test := range tests {
		if got := Classify(test.loss, test.bitrate); got != test.want {
			t.Errorf("Classify(%v, %v) = %v, want %v", test.loss, test.bitrate, got, test.want)
		}
	}
}
