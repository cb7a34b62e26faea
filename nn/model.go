package nn

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/domonkosgyomorey/BrainBuilder/nn/layers"
	"github.com/domonkosgyomorey/BrainBuilder/utils"
)

// Model is the on-disk form of a Network.
//
// Each entry of Layers is a layer record. Older files store every record as
// a JSON string holding the record; both forms are accepted on load.
type Model struct {
	Layers       []json.RawMessage `json:"Layers"`
	LearningRate float64           `json:"LearningRate"`
	LossFunction string            `json:"LossFunction"`
}

// Model snapshots the network's parameters.
func (n *Network) Model() (*Model, error) {
	m := &Model{
		Layers:       make([]json.RawMessage, 0, len(n.layers)),
		LearningRate: n.learningRate,
		LossFunction: n.loss.Type().String(),
	}
	for i, l := range n.layers {
		data, err := json.Marshal(l.Record())
		if err != nil {
			return nil, fmt.Errorf("marshal layer %d: %w", i, err)
		}
		m.Layers = append(m.Layers, data)
	}
	return m, nil
}

// MarshalModel encodes the network as an indented JSON document.
func (n *Network) MarshalModel() ([]byte, error) {
	m, err := n.Model()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(m, "", "  ")
}

// UnmarshalModel rebuilds a network from a model document. The loss and
// learning rate handler are supplied by the caller; a stored loss name that
// differs from lossType is logged and ignored. The stored learning rate is
// informational only.
func UnmarshalModel(data []byte, lossType LossType, handler *LearningRateHandler, opts ...Option) (*Network, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: empty model document", ErrInvalidState)
	}
	var m Model
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if len(m.Layers) == 0 {
		return nil, fmt.Errorf("%w: model has no layers", ErrInvalidState)
	}

	stack := make([]layers.Layer, 0, len(m.Layers))
	for i, raw := range m.Layers {
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		l, err := layers.FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		stack = append(stack, l)
	}

	n, err := NewNetwork(stack, lossType, handler, opts...)
	if err != nil {
		return nil, err
	}
	if m.LossFunction != "" {
		if stored, err := ParseLossType(m.LossFunction); err != nil || stored != lossType {
			n.logger.WithField("stored", m.LossFunction).
				WithField("using", lossType.String()).
				Warn("model loss function differs from requested loss")
		}
	}
	return n, nil
}

func decodeRecord(raw json.RawMessage) (layers.Record, error) {
	var rec layers.Record
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var embedded string
		if err := json.Unmarshal(raw, &embedded); err != nil {
			return rec, fmt.Errorf("%w: %v", layers.ErrDeserialize, err)
		}
		raw = []byte(embedded)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("%w: %v", layers.ErrDeserialize, err)
	}
	return rec, nil
}

// Save writes the model document to path.
func (n *Network) Save(path string) error {
	m, err := n.Model()
	if err != nil {
		return err
	}
	return utils.SaveJSON(path, m)
}

// Load reads a model document written by Save.
func Load(path string, lossType LossType, handler *LearningRateHandler, opts ...Option) (*Network, error) {
	data, err := utils.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalModel(data, lossType, handler, opts...)
}
