package nn

import (
	"fmt"

	"github.com/born-ml/mmpickle/internal/tensor"
)

// Embedding is a lookup table that maps discrete indices to dense vectors.
//
// Architecture:
//   - Weight: [NumEmbed, EmbedDim] parameter
//   - Forward: indices [...] (int32 or int64) -> embeddings [..., EmbedDim]
//
// Example:
//
//	// Vocabulary of 10000 words, embedding dimension 256
//	embed := nn.NewEmbedding(10000, 256)
//
//	indices, _ := tensor.FromSlice([]int64{1, 2, 3}, tensor.Shape{3})
//	embeddings, err := embed.Forward(indices) // Shape: [3, 256]
type Embedding struct {
	Weight   *Parameter `pickle:"weight"`    // Embedding weight matrix [NumEmbed, EmbedDim]
	NumEmbed int        `pickle:"num_embed"` // Number of embeddings (vocabulary size)
	EmbedDim int        `pickle:"embed_dim"` // Embedding dimension (vector size)
}

// NewEmbedding creates a new Embedding layer.
//
// The embedding weights are initialized from a standard normal distribution N(0, 1).
func NewEmbedding(numEmbeddings, embeddingDim int) *Embedding {
	return &Embedding{
		Weight:   NewParameter("weight", Randn(tensor.Shape{numEmbeddings, embeddingDim})),
		NumEmbed: numEmbeddings,
		EmbedDim: embeddingDim,
	}
}

// Forward performs embedding lookup.
//
// Returns an error if any index is out of bounds [0, NumEmbed).
func (e *Embedding) Forward(indices *tensor.RawTensor) (*tensor.RawTensor, error) {
	var ids []int64
	switch indices.DType() {
	case tensor.Int64:
		ids = indices.AsInt64()
	case tensor.Int32:
		for _, id := range indices.AsInt32() {
			ids = append(ids, int64(id))
		}
	default:
		return nil, fmt.Errorf("Embedding.Forward: expected int32 or int64 indices, got %s", indices.DType())
	}

	w, err := float32Data("Embedding.Forward weight", e.Weight.Data)
	if err != nil {
		return nil, err
	}

	shape := append(indices.Shape().Clone(), e.EmbedDim)
	out := Zeros(shape)
	y := out.AsFloat32()
	for i, id := range ids {
		if id < 0 || id >= int64(e.NumEmbed) {
			return nil, fmt.Errorf("Embedding.Forward: index %d out of range [0, %d)", id, e.NumEmbed)
		}
		copy(y[i*e.EmbedDim:(i+1)*e.EmbedDim], w[int(id)*e.EmbedDim:(int(id)+1)*e.EmbedDim])
	}
	return out, nil
}

// Parameters returns the list of trainable parameters.
func (e *Embedding) Parameters() []*Parameter {
	return []*Parameter{e.Weight}
}

// StateDict returns a map of parameter names to raw tensors.
func (e *Embedding) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{"weight": e.Weight.Data}
}

// LoadStateDict loads parameters from a state dictionary.
func (e *Embedding) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return copyInto("weight", e.Weight.Data, stateDict["weight"])
}
