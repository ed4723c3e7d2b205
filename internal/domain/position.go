package domain

// OwnPosition 持仓（来自 data-api，轮询间可能过期）
type OwnPosition struct {
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	CurrentValue float64 `json:"currentValue"`
	CurPrice     float64 `json:"curPrice"`
	Title        string  `json:"title,omitempty"`
	Outcome      string  `json:"outcome,omitempty"`
	Slug         string  `json:"slug,omitempty"`
}

// Value 按均价计算的持仓价值
func (p *OwnPosition) Value() float64 {
	if p == nil {
		return 0
	}
	return p.Size * p.AvgPrice
}

// FindPosition 按 (asset, conditionId) 查找持仓
func FindPosition(positions []OwnPosition, inst Instrument) *OwnPosition {
	for i := range positions {
		p := &positions[i]
		if p.Asset == inst.Asset && (inst.ConditionID == "" || p.ConditionID == inst.ConditionID) {
			return p
		}
	}
	return nil
}
