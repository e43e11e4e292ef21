package detection

import (
	"strings"
)

// FieldCount is the minimum number of comma-separated fields the backend
// accepts per record. Labelled records carry one more, the label.
const FieldCount = 41

// FormatExample is a single well-formed KDD record. It doubles as the
// fallback sample when the backend cannot provide one.
const FormatExample = "0,tcp,http,SF,215,45076,0,0,0,0,0,1,0,0,0,0,0,0,0,0,0,0,1,1,0.00,0.00,0.00,0.00,1.00,0.00,0.00,0,0,0.00,0.00,0.00,0.00,0.00,0.00,0.00,0.00,normal"

// Columns are the KDD Cup 1999 column names in record order.
var Columns = []string{
	"duration", "protocol_type", "service", "flag", "src_bytes", "dst_bytes",
	"land", "wrong_fragment", "urgent", "hot", "num_failed_logins", "logged_in",
	"num_compromised", "root_shell", "su_attempted", "num_root", "num_file_creations",
	"num_shells", "num_access_files", "num_outbound_cmds", "is_host_login",
	"is_guest_login", "count", "srv_count", "serror_rate", "srv_serror_rate",
	"rerror_rate", "srv_rerror_rate", "same_srv_rate", "diff_srv_rate",
	"srv_diff_host_rate", "dst_host_count", "dst_host_srv_count",
	"dst_host_same_srv_rate", "dst_host_diff_srv_rate", "dst_host_same_src_port_rate",
	"dst_host_srv_diff_host_rate", "dst_host_serror_rate", "dst_host_srv_serror_rate",
	"dst_host_rerror_rate", "dst_host_srv_rerror_rate", "label",
}

// Records splits raw KDD text into non-empty trimmed lines.
func Records(text string) []string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Label returns the last field of a KDD record.
func Label(record string) string {
	i := strings.LastIndexByte(record, ',')
	if i < 0 {
		return strings.TrimSpace(record)
	}
	return strings.TrimSpace(record[i+1:])
}

// LabelTally counts the labels of every record in text by category. It is a
// local summary of the input file, not a classification.
func LabelTally(text string) Tally {
	var t Tally
	for _, rec := range Records(text) {
		t.Add(CategoryForLabel(Label(rec)).String())
	}
	return t
}
