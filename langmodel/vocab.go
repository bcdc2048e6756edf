package langmodel

// Reserved token indices shared by every model. Index 0 doubles as the
// "empty" value on the pose frame grid.
const (
	PAD = 0
	SOS = 1
	EOS = 2
	UNK = 3
)

// Model is the language-model collaborator: it maps words to dense
// vocabulary indices and exposes the reserved tokens. Embedding
// construction happens outside this module.
type Model interface {
	WordIndex(word string) int
	Size() int
	EmbeddingWeights() [][]float64 // nil when no pretrained table is attached
}

// Vocab is a map-backed Model. Unknown words resolve to UNK.
type Vocab struct {
	Word2Index map[string]int
	Index2Word []string
	Embeddings [][]float64
}

func NewVocab() *Vocab {
	v := &Vocab{Word2Index: map[string]int{}}
	for _, w := range []string{"<pad>", "<sos>", "<eos>", "<unk>"} {
		v.Word2Index[w] = len(v.Index2Word)
		v.Index2Word = append(v.Index2Word, w)
	}
	return v
}

// BuildVocab indexes every word in the given sentences that occurs more
// than minCount times. Words at or below the threshold stay unknown.
func BuildVocab(sentences [][]string, minCount int) *Vocab {
	counts := map[string]int{}
	for _, sent := range sentences {
		for _, w := range sent {
			counts[w]++
		}
	}
	v := NewVocab()
	for _, sent := range sentences {
		for _, w := range sent {
			if counts[w] > minCount {
				v.indexWord(w)
			}
		}
	}
	return v
}

func (v *Vocab) indexWord(w string) int {
	if idx, ok := v.Word2Index[w]; ok {
		return idx
	}
	idx := len(v.Index2Word)
	v.Word2Index[w] = idx
	v.Index2Word = append(v.Index2Word, w)
	return idx
}

func (v *Vocab) WordIndex(word string) int {
	if idx, ok := v.Word2Index[word]; ok {
		return idx
	}
	return UNK
}

func (v *Vocab) Size() int { return len(v.Index2Word) }

func (v *Vocab) EmbeddingWeights() [][]float64 { return v.Embeddings }
