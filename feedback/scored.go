package feedback

// StakesType labels the direction of a stakes message.
type StakesType string

const (
	StakesRisk    StakesType = "risk"
	StakesUpside  StakesType = "upside"
	StakesNeutral StakesType = "neutral"
)

// Stakes describes what is at risk, or to gain, for an item.
type Stakes struct {
	Type    StakesType `json:"type"`
	Message string     `json:"message"`
}

// SubScore is one weighted component of an impact score.
type SubScore struct {
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

// Breakdown holds the three weighted components of an impact score.
type Breakdown struct {
	Reach     SubScore `json:"reach"`
	Sentiment SubScore `json:"sentiment"`
	Velocity  SubScore `json:"velocity"`
}

// ImpactData is the derived impact of one item.
type ImpactData struct {
	Score     float64   `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
	Rationale string    `json:"rationale"`
	Stakes    Stakes    `json:"stakes"`
}

// ScoredItem is a ClassifiedItem with its impact and signal scores.
type ScoredItem struct {
	ClassifiedItem
	Impact      ImpactData `json:"impact"`
	SignalScore float64    `json:"signalScore"`
}
