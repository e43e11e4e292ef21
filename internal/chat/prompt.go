// Package chat builds the assistant's system prompt and forwards
// conversations to the configured LLM provider.
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nopenet/nopenet/internal/detection"
	"github.com/nopenet/nopenet/internal/llm"
)

// DetectionHeading marks the scan summary block inside the system prompt.
const DetectionHeading = "CURRENT DETECTION RESULTS:"

const preamble = `You are the NopeNet Assistant, an AI specialized in network security and intrusion detection.

NopeNet is a web application for network intrusion detection. It analyzes network connection records to detect potential threats and attacks, and provides visualizations and actionable recommendations.

You can help users understand the main categories of network attacks:
- DOS (Denial of Service): attacks that try to make a machine or network resource unavailable
- Probe: surveillance and scanning that gathers information for later exploitation
- R2L (Remote to Local): unauthorized access to a local machine from a remote one
- U2R (User to Root): a normal user gaining root or administrator privileges

Give helpful, concise answers about network security, intrusion detection and the KDD Cup 1999 dataset.
When appropriate, suggest specific security recommendations.

IMPORTANT: Format your responses in Markdown. Use these elements where they help:

- **bold** for important points
- headings (# Heading 1, ## Heading 2) to organize information
- bullet points and numbered lists for steps and enumerations
- fenced code blocks with ` + "```" + ` for configuration snippets or commands
- tables for comparisons
- > block quotes for important notes

Keep responses visually structured and easy to scan.`

const groundingInstructions = `When the user asks about their scan results or detection data, refer to these figures.
You can mention the attack types found and their quantities.
Tailor security recommendations to the threats that were actually detected.
Present security recommendations in a clear structure using Markdown.`

// SystemPrompt returns the assistant preamble, followed by a summary of data
// when data is non-nil.
func SystemPrompt(data *detection.Data) string {
	if data == nil {
		return preamble
	}

	t := data.Tally()
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")
	b.WriteString(DetectionHeading)
	b.WriteString("\n")
	fmt.Fprintf(&b, "- Total packets analyzed: %d\n", data.TotalPackets)
	fmt.Fprintf(&b, "- Attacks detected: %d\n", data.AttacksDetected)
	fmt.Fprintf(&b, "- Processing time: %s\n", orNA(data.ProcessingTime))
	b.WriteString("- Attack breakdown:\n")
	fmt.Fprintf(&b, "  - DOS attacks: %d\n", t.DOS)
	fmt.Fprintf(&b, "  - Probe attacks: %d\n", t.Probe)
	fmt.Fprintf(&b, "  - R2L attacks: %d\n", t.R2L)
	fmt.Fprintf(&b, "  - U2R attacks: %d\n", t.U2R)
	fmt.Fprintf(&b, "  - Normal traffic: %d\n", t.Normal)
	b.WriteString("\n")
	b.WriteString(groundingInstructions)
	return b.String()
}

// Augment prepends the system prompt to msgs. Only role and content of the
// caller's messages are carried over.
func Augment(msgs []llm.Message, data *detection.Data) []llm.Message {
	out := make([]llm.Message, 0, len(msgs)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt(data)})
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// ParseDetectionData decodes the optional detectionData field of a chat
// request. Absent or null input yields nil with no error. A shape that does
// not decode yields nil and the decode error; callers fall back to the plain
// preamble.
func ParseDetectionData(raw json.RawMessage) (*detection.Data, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var d detection.Data
	if err := json.Unmarshal(trimmed, &d); err != nil {
		return nil, fmt.Errorf("chat: decode detection data: %w", err)
	}
	return &d, nil
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
