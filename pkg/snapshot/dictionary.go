package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Dictionary maps attribute names to mask bit indices. The compiler derives
// one dictionary per blueprint (declared attributes plus every attribute a
// guard references, sorted); the ingest path computes snapshot masks through
// the active dictionary of the tenant.
//
// A dictionary is immutable after construction and carries a content hash so
// that snapshot masks computed against a stale dictionary are detectable.
type Dictionary struct {
	names []string
	index map[string]int
	hash  string
}

// NewDictionary builds a dictionary from attribute names in the given order.
// Duplicate names keep their first index.
func NewDictionary(names []string) *Dictionary {
	d := &Dictionary{
		index: make(map[string]int, len(names)),
	}
	for _, name := range names {
		if _, exists := d.index[name]; exists {
			continue
		}
		d.index[name] = len(d.names)
		d.names = append(d.names, name)
	}
	d.hash = computeDictHash(d.names)
	return d
}

func computeDictHash(names []string) string {
	h := sha256.New()
	for _, name := range names {
		// Length-prefixed framing so "ab","c" and "a","bc" differ.
		n := len(name)
		h.Write([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
		h.Write([]byte(name))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Bit returns the bit index for the attribute name and whether it exists.
func (d *Dictionary) Bit(name string) (int, bool) {
	i, ok := d.index[name]
	return i, ok
}

// Names returns the attribute names in bit order. The returned slice is a
// copy.
func (d *Dictionary) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Len returns the number of attributes in the dictionary.
func (d *Dictionary) Len() int {
	return len(d.names)
}

// Hash returns the dictionary's content hash.
func (d *Dictionary) Hash() string {
	return d.hash
}

// MarshalJSON encodes the dictionary as its ordered name list.
func (d *Dictionary) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.names)
}

// UnmarshalJSON rebuilds the dictionary from an ordered name list.
func (d *Dictionary) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*d = *NewDictionary(names)
	return nil
}

// MaskOf computes the attribute mask for the given attribute set. Attributes
// not present in the dictionary contribute no bits.
func (d *Dictionary) MaskOf(attrs map[string]any) Mask {
	m := NewMask(len(d.names))
	for name := range attrs {
		if bit, ok := d.index[name]; ok {
			m.Set(bit)
		}
	}
	return m
}
