package call

// Tier is the user-facing rating of the current media path.
type Tier uint8

const (
	QualityPoor Tier = iota
	QualityFair
	QualityGood
	QualityExcellent
)

func (t Tier) String() string {
	switch t {
	case QualityExcellent:
		return "excellent"
	case QualityGood:
		return "good"
	case QualityFair:
		return "fair"
	}
	return "poor"
}

// QualitySample is one periodic measurement of the media path.
type QualitySample struct {
	LossPercent float64
	BitrateKbps float64
	Tier        Tier
}

// Classify derives the tier from a loss/bitrate pair.
func Classify(lossPercent, bitrateKbps float64) Tier {
	switch {
	case lossPercent < 1 && bitrateKbps > 500:
		return QualityExcellent
	case lossPercent < 3 && bitrateKbps > 300:
		return QualityGood
	case lossPercent < 5 && bitrateKbps > 200:
		return QualityFair
	}
	return QualityPoor
}
