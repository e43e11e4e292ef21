// Package detection holds the scan result types returned by the detection
// backend and the attack-category tally used by the chat prompt.
package detection

// Result is one classified KDD record as returned by the detection backend.
type Result struct {
	AttackType    string  `json:"attackType"`
	Confidence    float64 `json:"confidence,omitempty"`
	Protocol      string  `json:"protocol,omitempty"`
	Flag          string  `json:"flag,omitempty"`
	Timestamp     string  `json:"timestamp,omitempty"`
	RawPrediction string  `json:"rawPrediction,omitempty"`
}

// Data is the aggregate of one scan. It is produced by a single predict call
// and owned by the caller; the gateway never stores it.
type Data struct {
	InputText       string   `json:"inputText"`
	TotalPackets    int      `json:"totalPackets"`
	AttacksDetected int      `json:"attacksDetected"`
	ProcessingTime  string   `json:"processingTime"`
	Results         []Result `json:"results"`
}

// Tally counts the results of d per category.
func (d *Data) Tally() Tally {
	var t Tally
	if d == nil {
		return t
	}
	for _, r := range d.Results {
		t.Add(r.AttackType)
	}
	return t
}
