package chat

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nopenet/nopenet/internal/detection"
	"github.com/nopenet/nopenet/internal/llm"
)

func dataWith(labels ...string) *detection.Data {
	d := &detection.Data{
		TotalPackets:    len(labels),
		AttacksDetected: 0,
		ProcessingTime:  "1.2s",
	}
	for _, l := range labels {
		d.Results = append(d.Results, detection.Result{AttackType: l})
		if l != "normal" {
			d.AttacksDetected++
		}
	}
	return d
}

func TestSystemPromptWithoutDetectionData(t *testing.T) {
	p := SystemPrompt(nil)
	if strings.Contains(p, "CURRENT DETECTION RESULTS") {
		t.Fatal("prompt without data must not contain a detection section")
	}
	for _, want := range []string{"NopeNet Assistant", "Markdown", "DOS", "U2R", "```"} {
		if !strings.Contains(p, want) {
			t.Errorf("preamble missing %q", want)
		}
	}
}

func TestSystemPromptWithDetectionData(t *testing.T) {
	d := dataWith("DOS", "DOS", "DOS", "Probe", "R2L", "U2R", "normal", "normal")
	p := SystemPrompt(d)

	for _, want := range []string{
		"CURRENT DETECTION RESULTS:",
		"- Total packets analyzed: 8",
		"- Attacks detected: 6",
		"- Processing time: 1.2s",
		"  - DOS attacks: 3",
		"  - Probe attacks: 1",
		"  - R2L attacks: 1",
		"  - U2R attacks: 1",
		"  - Normal traffic: 2",
		"scan results",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSystemPromptTalliesSumToResults(t *testing.T) {
	d := dataWith("normal", "Probe", "U2R", "R2L", "DOS", "normal", "Probe")
	got := promptTallySum(t, SystemPrompt(d))
	if got != len(d.Results) {
		t.Fatalf("tallies sum to %d, want %d", got, len(d.Results))
	}
}

func TestSystemPromptDropsUnrecognizedLabels(t *testing.T) {
	d := dataWith("DOS", "unknown", "normal", "Smurf")
	got := promptTallySum(t, SystemPrompt(d))
	if got != 2 {
		t.Fatalf("tallies sum to %d, want 2", got)
	}
	if got >= len(d.Results) {
		t.Fatal("unrecognized labels must be excluded from the tallies")
	}
}

func TestSystemPromptMissingProcessingTime(t *testing.T) {
	d := dataWith("normal")
	d.ProcessingTime = ""
	if !strings.Contains(SystemPrompt(d), "- Processing time: N/A") {
		t.Fatal("expected N/A for missing processing time")
	}
}

func TestAugmentPrependsSystemMessage(t *testing.T) {
	in := []llm.Message{{Role: "user", Content: "Hello"}, {Role: "assistant", Content: "Hi"}, {Role: "user", Content: "What is R2L?"}}
	out := Augment(in, nil)

	if len(out) != len(in)+1 {
		t.Fatalf("expected %d messages, got %d", len(in)+1, len(out))
	}
	if out[0].Role != llm.RoleSystem || out[0].Content != SystemPrompt(nil) {
		t.Fatalf("unexpected first message %+v", out[0])
	}
	for i, m := range in {
		if out[i+1] != m {
			t.Errorf("message %d changed: %+v != %+v", i, out[i+1], m)
		}
	}
}

func TestParseDetectionData(t *testing.T) {
	d, err := ParseDetectionData(nil)
	if d != nil || err != nil {
		t.Fatalf("absent field: got %v, %v", d, err)
	}
	d, err = ParseDetectionData(json.RawMessage(" null "))
	if d != nil || err != nil {
		t.Fatalf("null field: got %v, %v", d, err)
	}

	d, err = ParseDetectionData(json.RawMessage(`{"totalPackets":3,"attacksDetected":1,"processingTime":"0.8s","results":[{"attackType":"DOS","confidence":0.9}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.TotalPackets != 3 || len(d.Results) != 1 || d.Results[0].AttackType != "DOS" {
		t.Fatalf("unexpected data %+v", d)
	}

	for _, bad := range []string{`"oops"`, `{"results":"not-a-list"}`, `{"totalPackets":"many"}`, `[1,2]`} {
		if d, err := ParseDetectionData(json.RawMessage(bad)); err == nil || d != nil {
			t.Errorf("expected error for %s, got %v", bad, d)
		}
	}
}

// promptTallySum adds up the five per-category lines of a prompt.
func promptTallySum(t *testing.T, prompt string) int {
	t.Helper()
	prefixes := []string{"  - DOS attacks: ", "  - Probe attacks: ", "  - R2L attacks: ", "  - U2R attacks: ", "  - Normal traffic: "}
	sum := 0
	for _, line := range strings.Split(prompt, "\n") {
		for _, p := range prefixes {
			if strings.HasPrefix(line, p) {
				var n int
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, p)), &n); err != nil {
					t.Fatalf("bad tally line %q: %v", line, err)
				}
				sum += n
			}
		}
	}
	return sum
}
