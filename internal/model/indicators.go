package model

// VolumeStats summarizes traded volume over a range.
type VolumeStats struct {
	Mean float64
	Min  float64
	Max  float64
}

// ColumnStats holds the figures shown on one instrument's card.
type ColumnStats struct {
	Symbol   string
	Last     float64
	Previous float64
	Delta    float64 // fractional change Last/Previous - 1
	High     float64 // over the visible range
	Low      float64
	Position float64 // 0.0 ~ 1.0 within High/Low
	MA50     float64 // latest rolling means
	MA200    float64
	Volume   VolumeStats
	Bars     int // visible bars
}

// Up reports whether the last close is at or above the previous one.
func (s ColumnStats) Up() bool { return s.Delta >= 0 }
