package dataset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/flxnaf/beamestraight/internal/corpus"
)

// DomainCorpus separates dataset fingerprints from any other SHA-256 use.
// The version suffix changes whenever the listing format does.
const DomainCorpus = "labelprep/corpus/v1"

// Entry is one written image as seen by the fingerprint.
type Entry struct {
	Subset string
	Name   string
	Label  []byte
}

// Fingerprint hashes the canonical listing of a written dataset: mode,
// class table, then one line per image sorted by (subset, name) holding
// the subset, the output name and the SHA-256 of the label file. Names
// are NFC-normalized so the same archive extracted on different systems
// hashes the same. Identical inputs give identical fingerprints.
func Fingerprint(mode corpus.Mode, classes []string, entries []Entry) string {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Subset != sorted[j].Subset {
			return sorted[i].Subset < sorted[j].Subset
		}
		return sorted[i].Name < sorted[j].Name
	})

	var buf bytes.Buffer
	writeRecord(&buf, string(mode))
	normalized := make([]string, len(classes))
	for i, c := range classes {
		normalized[i] = norm.NFC.String(c)
	}
	writeRecord(&buf, normalized...)
	for _, e := range sorted {
		sum := sha256.Sum256(e.Label)
		writeRecord(&buf, e.Subset, norm.NFC.String(e.Name), hex.EncodeToString(sum[:]))
	}
	return hashWithDomain(DomainCorpus, buf.Bytes())
}

// writeRecord appends fields as a JSON array line; JSON string escaping
// keeps field boundaries unambiguous.
func writeRecord(buf *bytes.Buffer, fields ...string) {
	if fields == nil {
		fields = []string{}
	}
	data, _ := json.Marshal(fields)
	buf.Write(data)
	buf.WriteByte('\n')
}

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
