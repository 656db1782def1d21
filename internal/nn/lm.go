package nn

import (
	"fmt"

	"github.com/born-ml/mmpickle/internal/tensor"
)

// TiedLM is a small language model whose output projection reuses the
// embedding matrix.
//
//	tokens [n] -> Embed [n, dim] -> Body [n, dim] -> Head [n, vocab]
//
// Head.Weight and Embed.Weight are distinct parameters viewing one storage,
// so an update to either is seen by both, and the matrix is saved once.
type TiedLM struct {
	Embed *Embedding  `pickle:"embed"`
	Body  *Sequential `pickle:"body"`
	Head  *Linear     `pickle:"head"`
}

// NewTiedLM creates a model with a vocabulary of vocab tokens, model width
// dim and one hidden layer of the given width.
func NewTiedLM(vocab, dim, hidden int) (*TiedLM, error) {
	embed := NewEmbedding(vocab, dim)
	head, err := NewLinearWithWeight(embed.Weight.Data.View(), nil)
	if err != nil {
		return nil, err
	}
	return &TiedLM{
		Embed: embed,
		Body: NewSequential(
			NewLinear(dim, hidden),
			NewReLU(),
			NewLinear(hidden, dim),
		),
		Head: head,
	}, nil
}

// Tied reports whether the head still shares the embedding storage.
func (m *TiedLM) Tied() bool {
	return m.Head.Weight.Data.Storage() == m.Embed.Weight.Data.Storage()
}

// Forward maps token ids to logits over the vocabulary.
func (m *TiedLM) Forward(tokens *tensor.RawTensor) (*tensor.RawTensor, error) {
	if len(tokens.Shape()) != 1 {
		return nil, fmt.Errorf("TiedLM.Forward: expected 1D token ids, got shape %v", tokens.Shape())
	}
	h, err := m.Embed.Forward(tokens)
	if err != nil {
		return nil, err
	}
	if h, err = m.Body.Forward(h); err != nil {
		return nil, err
	}
	return m.Head.Forward(h)
}

// Parameters returns the embedding, body and head parameters. The head
// weight is listed although it shares storage with the embedding.
func (m *TiedLM) Parameters() []*Parameter {
	params := m.Embed.Parameters()
	params = append(params, m.Body.Parameters()...)
	return append(params, m.Head.Parameters()...)
}

// StateDict returns parameters under "embed.", "body." and "head."
// prefixes. "head.weight" and "embed.weight" view the same storage.
func (m *TiedLM) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for prefix, module := range map[string]Module{"embed.": m.Embed, "body.": m.Body, "head.": m.Head} {
		for name, raw := range module.StateDict() {
			stateDict[prefix+name] = raw
		}
	}
	return stateDict
}

// LoadStateDict loads the embedding and body. The head follows the
// embedding through the shared storage.
func (m *TiedLM) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := m.Embed.LoadStateDict(subStateDict(stateDict, "embed.")); err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if err := m.Body.LoadStateDict(subStateDict(stateDict, "body.")); err != nil {
		return fmt.Errorf("body: %w", err)
	}
	if !m.Tied() {
		if err := m.Head.LoadStateDict(subStateDict(stateDict, "head.")); err != nil {
			return fmt.Errorf("head: %w", err)
		}
	}
	return nil
}
